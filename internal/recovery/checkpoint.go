package recovery

import (
	"errors"

	"github.com/tuannm99/novasql/internal/alias/bx"
	"github.com/tuannm99/novasql/internal/buffer"
	"github.com/tuannm99/novasql/internal/diskmgr"
)

const checkpointMagic uint32 = 0x434b5054 // "CKPT"

// ErrCheckpointTooBig is returned when a CheckPoint's serialized form
// would not fit in a single diskmgr page.
var ErrCheckpointTooBig = errors.New("recovery: checkpoint does not fit in one page")

// SerializeCheckPoint writes [u32 magic][i64 checkpoint_lsn]
// [u32 n_active][n_active pairs of (i64 txn_id, i64 lsn)]
// [u32 n_data][n_data pairs of (u32 keylen, key, u32 vallen, val)] into buf.
func SerializeCheckPoint(cp *CheckPoint, buf []byte) error {
	need := 4 + 8 + 4 + 16*len(cp.ActiveTxns) + 4
	for k, v := range cp.PersistData {
		need += 4 + len(k) + 4 + len(v)
	}
	if need > len(buf) {
		return ErrCheckpointTooBig
	}

	off := 0
	bx.PutU32(buf[off:off+4], checkpointMagic)
	off += 4
	bx.PutU64(buf[off:off+8], uint64(cp.CheckpointLSN))
	off += 8

	bx.PutU32(buf[off:off+4], uint32(len(cp.ActiveTxns)))
	off += 4
	for txn, lsn := range cp.ActiveTxns {
		bx.PutU64(buf[off:off+8], uint64(txn))
		off += 8
		bx.PutU64(buf[off:off+8], uint64(lsn))
		off += 8
	}

	bx.PutU32(buf[off:off+4], uint32(len(cp.PersistData)))
	off += 4
	for k, v := range cp.PersistData {
		bx.PutU32(buf[off:off+4], uint32(len(k)))
		off += 4
		copy(buf[off:], k)
		off += len(k)
		bx.PutU32(buf[off:off+4], uint32(len(v)))
		off += 4
		copy(buf[off:], v)
		off += len(v)
	}
	return nil
}

// DeserializeCheckPoint reads the form SerializeCheckPoint writes.
func DeserializeCheckPoint(buf []byte) (*CheckPoint, error) {
	if len(buf) < 16 {
		return nil, ErrCheckpointTooBig
	}
	off := 0
	magic := bx.U32(buf[off : off+4])
	off += 4
	if magic != checkpointMagic {
		return nil, ErrCheckpointTooBig
	}

	cp := NewCheckPoint()
	cp.CheckpointLSN = LSN(bx.U64(buf[off : off+8]))
	off += 8

	nActive := bx.U32(buf[off : off+4])
	off += 4
	for i := uint32(0); i < nActive; i++ {
		txn := TxnID(bx.U64(buf[off : off+8]))
		off += 8
		lsn := LSN(bx.U64(buf[off : off+8]))
		off += 8
		cp.AddActiveTxn(txn, lsn)
	}

	nData := bx.U32(buf[off : off+4])
	off += 4
	for i := uint32(0); i < nData; i++ {
		klen := bx.U32(buf[off : off+4])
		off += 4
		key := string(buf[off : off+int(klen)])
		off += int(klen)
		vlen := bx.U32(buf[off : off+4])
		off += 4
		val := string(buf[off : off+int(vlen)])
		off += int(vlen)
		cp.AddData(key, val)
	}
	return cp, nil
}

// SaveCheckPoint serializes cp into a freshly allocated page of bpm and
// flushes it, so a checkpoint taken mid-run survives a restart the same
// way the catalog's own meta page does. Returns the page id to pass to
// LoadCheckPoint.
func SaveCheckPoint(bpm *buffer.Manager, cp *CheckPoint) (int32, error) {
	frame, err := bpm.NewPage()
	if err != nil {
		return diskmgr.InvalidPageID, err
	}
	pageID := frame.PageID

	if err := SerializeCheckPoint(cp, frame.Data); err != nil {
		bpm.UnpinPage(pageID, false)
		_, _ = bpm.DeletePage(pageID)
		return diskmgr.InvalidPageID, err
	}

	bpm.UnpinPage(pageID, true)
	if _, err := bpm.FlushPage(pageID); err != nil {
		return diskmgr.InvalidPageID, err
	}
	return pageID, nil
}

// LoadCheckPoint fetches pageID from bpm and deserializes the CheckPoint
// SaveCheckPoint wrote there.
func LoadCheckPoint(bpm *buffer.Manager, pageID int32) (*CheckPoint, error) {
	frame, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	cp, err := DeserializeCheckPoint(frame.Data)
	bpm.UnpinPage(pageID, false)
	if err != nil {
		return nil, err
	}
	return cp, nil
}
