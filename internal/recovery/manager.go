package recovery

import (
	"log/slog"
	"sort"
	"sync"
)

const logPrefix = "recovery: "

// Manager replays a logical log against a checkpoint: Init adopts the
// checkpoint, RedoPhase applies every record after it in LSN order, and
// UndoPhase rolls back whatever transactions are still active afterward.
type Manager struct {
	mu sync.Mutex

	logRecs map[LSN]*LogRecord

	persistLSN LSN
	activeTxns map[TxnID]LSN
	data       map[string]string
}

// NewManager returns a Manager with no log records and no checkpoint
// adopted yet; call AppendLogRec to populate the log, then Init.
func NewManager() *Manager {
	return &Manager{
		logRecs:    make(map[LSN]*LogRecord),
		persistLSN: InvalidLSN,
		activeTxns: make(map[TxnID]LSN),
		data:       make(map[string]string),
	}
}

// AppendLogRec adds a record to the log. Safe to call before or after
// Init; RedoPhase reads the full log as of when it runs.
func (m *Manager) AppendLogRec(rec *LogRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logRecs[rec.LSN] = rec
}

// Init adopts a checkpoint: persist_lsn becomes the checkpoint's LSN, and
// active_txns/data are seeded from it.
func (m *Manager) Init(cp *CheckPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.persistLSN = cp.CheckpointLSN
	m.activeTxns = make(map[TxnID]LSN, len(cp.ActiveTxns))
	for txn, lsn := range cp.ActiveTxns {
		m.activeTxns[txn] = lsn
	}
	m.data = make(map[string]string, len(cp.PersistData))
	for k, v := range cp.PersistData {
		m.data[k] = v
	}
}

// sortedLSNsAfterLocked returns every LSN strictly greater than after, in
// ascending order. Caller must hold m.mu.
func (m *Manager) sortedLSNsAfterLocked(after LSN) []LSN {
	lsns := make([]LSN, 0, len(m.logRecs))
	for lsn := range m.logRecs {
		if lsn > after {
			lsns = append(lsns, lsn)
		}
	}
	sort.Slice(lsns, func(i, j int) bool { return lsns[i] < lsns[j] })
	return lsns
}

// RedoPhase walks every log record after persist_lsn in ascending order,
// tracking each transaction's last-seen LSN and applying data effects.
// Abort records roll back their own transaction immediately.
func (m *Manager) RedoPhase() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lsn := range m.sortedLSNsAfterLocked(m.persistLSN) {
		rec := m.logRecs[lsn]
		m.activeTxns[rec.TxnID] = rec.LSN

		switch rec.Type {
		case LogInsert:
			m.data[rec.NewKey] = rec.NewVal
		case LogDelete:
			delete(m.data, rec.OldKey)
		case LogUpdate:
			delete(m.data, rec.OldKey)
			m.data[rec.NewKey] = rec.NewVal
		case LogBegin:
			// no data effect
		case LogCommit:
			delete(m.activeTxns, rec.TxnID)
		case LogAbort:
			m.rollbackLocked(rec.TxnID)
			delete(m.activeTxns, rec.TxnID)
		default:
			slog.Warn(logPrefix+"unknown log record type during redo", "lsn", lsn, "type", rec.Type)
		}
	}
}

// UndoPhase rolls back every transaction still active after RedoPhase,
// then clears active_txns.
func (m *Manager) UndoPhase() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for txn := range m.activeTxns {
		m.rollbackLocked(txn)
	}
	m.activeTxns = make(map[TxnID]LSN)
}

// Rollback walks txnID's prev_lsn chain from its last-seen LSN, undoing
// each record's data effect. Idempotent given the same starting chain.
func (m *Manager) Rollback(txnID TxnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackLocked(txnID)
}

func (m *Manager) rollbackLocked(txnID TxnID) {
	lsn, ok := m.activeTxns[txnID]
	if !ok {
		return
	}
	for lsn != InvalidLSN {
		rec, ok := m.logRecs[lsn]
		if !ok {
			break
		}
		switch rec.Type {
		case LogInsert:
			delete(m.data, rec.NewKey)
		case LogDelete:
			m.data[rec.OldKey] = rec.OldVal
		case LogUpdate:
			delete(m.data, rec.NewKey)
			m.data[rec.OldKey] = rec.OldVal
		default:
			// Begin/Commit/Abort are control records with no data effect.
		}
		lsn = rec.PrevLSN
	}
}

// Data returns the recovered key/value state. Exposed for tests and for
// whatever component bootstraps post-recovery in-memory state.
func (m *Manager) Data() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// ActiveTxns returns a snapshot of the still-active transaction set.
// After a full Init+RedoPhase+UndoPhase this is always empty.
func (m *Manager) ActiveTxns() map[TxnID]LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[TxnID]LSN, len(m.activeTxns))
	for k, v := range m.activeTxns {
		out[k] = v
	}
	return out
}
