// Package recovery rebuilds consistent in-memory key/value state from a
// checkpoint plus a logical write-ahead log: redo everything since the
// checkpoint, then undo every transaction left active.
package recovery

// LSN is a log sequence number: a monotonic identifier of a log record.
type LSN int64

// InvalidLSN marks an absent prev_lsn chain link or an empty checkpoint.
const InvalidLSN LSN = -1

// TxnID identifies a transaction.
type TxnID int64

// LogRecType enumerates the kinds of log records the recovery manager
// understands.
type LogRecType uint8

const (
	LogInvalid LogRecType = iota
	LogBegin
	LogCommit
	LogAbort
	LogInsert
	LogDelete
	LogUpdate
)

// LogRecord is one entry of the logical log. PrevLSN chains all records
// of a single transaction backwards to its Begin.
type LogRecord struct {
	LSN     LSN
	PrevLSN LSN
	TxnID   TxnID
	Type    LogRecType

	OldKey string
	OldVal string
	NewKey string
	NewVal string
}

// CheckPoint is a recovery starting point: the last durable LSN, the set
// of transactions still active as of that LSN, and the data snapshot as
// of that LSN.
type CheckPoint struct {
	CheckpointLSN LSN
	ActiveTxns    map[TxnID]LSN
	PersistData   map[string]string
}

// NewCheckPoint returns an empty checkpoint at InvalidLSN.
func NewCheckPoint() *CheckPoint {
	return &CheckPoint{
		CheckpointLSN: InvalidLSN,
		ActiveTxns:    make(map[TxnID]LSN),
		PersistData:   make(map[string]string),
	}
}

// AddActiveTxn records txnID's last-seen LSN as of this checkpoint.
func (c *CheckPoint) AddActiveTxn(txnID TxnID, lastLSN LSN) {
	c.ActiveTxns[txnID] = lastLSN
}

// AddData seeds a key/value pair into the checkpoint's data snapshot.
func (c *CheckPoint) AddData(key, val string) {
	c.PersistData[key] = val
}
