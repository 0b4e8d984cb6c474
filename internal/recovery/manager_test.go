package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestManager_Scenario6 grounds spec scenario 6: CheckPoint{lsn=10,
// active={T1:9}, data={k1:v1}}, then a log of 11..15, redo+undo yields
// data={k1:v1, k3:v3} and no active transactions.
func TestManager_Scenario6(t *testing.T) {
	m := NewManager()

	cp := NewCheckPoint()
	cp.CheckpointLSN = 10
	cp.AddActiveTxn(1, 9)
	cp.AddData("k1", "v1")

	m.AppendLogRec(&LogRecord{LSN: 9, PrevLSN: InvalidLSN, TxnID: 1, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 11, PrevLSN: 9, TxnID: 1, Type: LogInsert, NewKey: "k2", NewVal: "v2"})
	m.AppendLogRec(&LogRecord{LSN: 12, PrevLSN: 11, TxnID: 1, Type: LogUpdate, OldKey: "k2", NewKey: "k3", NewVal: "v3"})
	m.AppendLogRec(&LogRecord{LSN: 13, PrevLSN: 12, TxnID: 1, Type: LogCommit})
	m.AppendLogRec(&LogRecord{LSN: 14, PrevLSN: InvalidLSN, TxnID: 2, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 15, PrevLSN: 14, TxnID: 2, Type: LogInsert, NewKey: "k4", NewVal: "v4"})

	m.Init(cp)
	m.RedoPhase()
	m.UndoPhase()

	require.Equal(t, map[string]string{"k1": "v1", "k3": "v3"}, m.Data())
	require.Empty(t, m.ActiveTxns())
}

func TestManager_RedoAppliesInsertDeleteUpdate(t *testing.T) {
	m := NewManager()
	cp := NewCheckPoint()
	m.AppendLogRec(&LogRecord{LSN: 1, PrevLSN: InvalidLSN, TxnID: 1, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 2, PrevLSN: 1, TxnID: 1, Type: LogInsert, NewKey: "a", NewVal: "1"})
	m.AppendLogRec(&LogRecord{LSN: 3, PrevLSN: 2, TxnID: 1, Type: LogInsert, NewKey: "b", NewVal: "2"})
	m.AppendLogRec(&LogRecord{LSN: 4, PrevLSN: 3, TxnID: 1, Type: LogDelete, OldKey: "a", OldVal: "1"})
	m.AppendLogRec(&LogRecord{LSN: 5, PrevLSN: 4, TxnID: 1, Type: LogCommit})

	m.Init(cp)
	m.RedoPhase()
	m.UndoPhase()

	require.Equal(t, map[string]string{"b": "2"}, m.Data())
	require.Empty(t, m.ActiveTxns())
}

func TestManager_UndoRollsBackUncommittedTxn(t *testing.T) {
	m := NewManager()
	cp := NewCheckPoint()
	m.AppendLogRec(&LogRecord{LSN: 1, PrevLSN: InvalidLSN, TxnID: 1, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 2, PrevLSN: 1, TxnID: 1, Type: LogInsert, NewKey: "a", NewVal: "1"})
	// No commit: this transaction is a loser and must be undone.

	m.Init(cp)
	m.RedoPhase()
	require.Equal(t, map[string]string{"a": "1"}, m.Data())

	m.UndoPhase()
	require.Empty(t, m.Data())
	require.Empty(t, m.ActiveTxns())
}

func TestManager_AbortDuringRedoRollsBackImmediately(t *testing.T) {
	m := NewManager()
	cp := NewCheckPoint()
	m.AppendLogRec(&LogRecord{LSN: 1, PrevLSN: InvalidLSN, TxnID: 1, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 2, PrevLSN: 1, TxnID: 1, Type: LogInsert, NewKey: "a", NewVal: "1"})
	m.AppendLogRec(&LogRecord{LSN: 3, PrevLSN: 2, TxnID: 1, Type: LogAbort})

	m.Init(cp)
	m.RedoPhase()

	require.Empty(t, m.Data())
	require.Empty(t, m.ActiveTxns())
}

func TestManager_RollbackIdempotent(t *testing.T) {
	m := NewManager()
	cp := NewCheckPoint()
	m.AppendLogRec(&LogRecord{LSN: 1, PrevLSN: InvalidLSN, TxnID: 1, Type: LogBegin})
	m.AppendLogRec(&LogRecord{LSN: 2, PrevLSN: 1, TxnID: 1, Type: LogInsert, NewKey: "a", NewVal: "1"})

	m.Init(cp)
	m.RedoPhase()
	require.Equal(t, map[string]string{"a": "1"}, m.Data())

	m.Rollback(1)
	require.Empty(t, m.Data())

	// Rolling back again with the same chain must not error or mutate
	// further state.
	m.Rollback(1)
	require.Empty(t, m.Data())
}
