package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/tuannm99/novasql/internal/recovery"
)

// traceTxn pairs a recovery.TxnID with a correlation id for log lines, the
// way a real deployment would tag every log record with a request/trace id
// distinct from the compact integer identifier stored on disk.
type traceTxn struct {
	id    recovery.TxnID
	trace uuid.UUID
}

func main() {
	m := recovery.NewManager()

	cp := recovery.NewCheckPoint()
	cp.CheckpointLSN = 10
	cp.AddActiveTxn(1, 9)
	cp.AddData("k1", "v1")

	t1 := traceTxn{id: 1, trace: uuid.New()}
	t2 := traceTxn{id: 2, trace: uuid.New()}
	fmt.Printf("txn %d trace=%s\n", t1.id, t1.trace)
	fmt.Printf("txn %d trace=%s\n", t2.id, t2.trace)

	m.AppendLogRec(&recovery.LogRecord{LSN: 9, PrevLSN: recovery.InvalidLSN, TxnID: t1.id, Type: recovery.LogBegin})
	m.AppendLogRec(&recovery.LogRecord{LSN: 11, PrevLSN: 9, TxnID: t1.id, Type: recovery.LogInsert, NewKey: "k2", NewVal: "v2"})
	m.AppendLogRec(&recovery.LogRecord{LSN: 12, PrevLSN: 11, TxnID: t1.id, Type: recovery.LogUpdate, OldKey: "k2", NewKey: "k3", NewVal: "v3"})
	m.AppendLogRec(&recovery.LogRecord{LSN: 13, PrevLSN: 12, TxnID: t1.id, Type: recovery.LogCommit})
	m.AppendLogRec(&recovery.LogRecord{LSN: 14, PrevLSN: recovery.InvalidLSN, TxnID: t2.id, Type: recovery.LogBegin})
	m.AppendLogRec(&recovery.LogRecord{LSN: 15, PrevLSN: 14, TxnID: t2.id, Type: recovery.LogInsert, NewKey: "k4", NewVal: "v4"})

	m.Init(cp)
	m.RedoPhase()
	m.UndoPhase()

	fmt.Println("recovered data:", m.Data())
	fmt.Println("active txns after recovery:", m.ActiveTxns())
}
