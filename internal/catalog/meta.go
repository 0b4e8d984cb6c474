package catalog

import (
	"encoding/binary"

	"github.com/tuannm99/novasql/internal/alias/bx"
	"github.com/tuannm99/novasql/internal/record"
)

const catalogMagic uint32 = 0x43415441 // "CATA"

// catalogMeta is the in-memory/on-disk form of the well-known catalog meta
// page: a magic number plus the two id -> meta_page_id mappings. Its
// serialized size must fit in one diskmgr.PageSize page.
type catalogMeta struct {
	tablePages map[uint32]int32 // table_id -> meta_page_id
	indexPages map[uint32]int32 // index_id -> meta_page_id
}

func newCatalogMeta() *catalogMeta {
	return &catalogMeta{
		tablePages: make(map[uint32]int32),
		indexPages: make(map[uint32]int32),
	}
}

// serializeTo writes [u32 magic][u32 n_tables][u32 n_indexes], then
// n_tables pairs (u32 table_id, u32 meta_page_id), then n_indexes pairs
// (u32 index_id, u32 meta_page_id).
func (cm *catalogMeta) serializeTo(buf []byte) error {
	need := 12 + 8*len(cm.tablePages) + 8*len(cm.indexPages)
	if need > len(buf) {
		return ErrSerializedTooBig
	}

	off := 0
	bx.PutU32(buf[off:off+4], catalogMagic)
	off += 4
	bx.PutU32(buf[off:off+4], uint32(len(cm.tablePages)))
	off += 4
	bx.PutU32(buf[off:off+4], uint32(len(cm.indexPages)))
	off += 4

	for id, pageID := range cm.tablePages {
		bx.PutU32(buf[off:off+4], id)
		off += 4
		bx.PutU32(buf[off:off+4], uint32(pageID))
		off += 4
	}
	for id, pageID := range cm.indexPages {
		bx.PutU32(buf[off:off+4], id)
		off += 4
		bx.PutU32(buf[off:off+4], uint32(pageID))
		off += 4
	}
	return nil
}

func deserializeCatalogMeta(buf []byte) (*catalogMeta, error) {
	if len(buf) < 12 {
		return nil, ErrGenericFailure
	}
	off := 0
	magic := bx.U32(buf[off : off+4])
	off += 4
	if magic != catalogMagic {
		return nil, ErrGenericFailure
	}
	nTables := bx.U32(buf[off : off+4])
	off += 4
	nIndexes := bx.U32(buf[off : off+4])
	off += 4

	cm := newCatalogMeta()
	for i := uint32(0); i < nTables; i++ {
		id := bx.U32(buf[off : off+4])
		off += 4
		pageID := bx.U32(buf[off : off+4])
		off += 4
		cm.tablePages[id] = int32(pageID)
	}
	for i := uint32(0); i < nIndexes; i++ {
		id := bx.U32(buf[off : off+4])
		off += 4
		pageID := bx.U32(buf[off : off+4])
		off += 4
		cm.indexPages[id] = int32(pageID)
	}
	return cm, nil
}

// tableMetadata is the on-disk form of a table's own meta page.
type tableMetadata struct {
	TableID   uint32
	Name      string
	FileBase  string
	PageCount uint32
	Schema    record.Schema
}

func (tm *tableMetadata) serializeTo(buf []byte) error {
	off := 0
	put32 := func(v uint32) {
		bx.PutU32(buf[off:off+4], v)
		off += 4
	}
	putStr := func(s string) {
		put32(uint32(len(s)))
		copy(buf[off:], s)
		off += len(s)
	}

	put32(tm.TableID)
	putStr(tm.Name)
	putStr(tm.FileBase)
	put32(tm.PageCount)

	if off+2 > len(buf) {
		return ErrSerializedTooBig
	}
	binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(tm.Schema.Cols)))
	off += 2

	for _, col := range tm.Schema.Cols {
		if off+2+len(col.Name)+2 > len(buf) {
			return ErrSerializedTooBig
		}
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(len(col.Name)))
		off += 2
		copy(buf[off:], col.Name)
		off += len(col.Name)
		buf[off] = byte(col.Type)
		off++
		if col.Nullable {
			buf[off] = 1
		} else {
			buf[off] = 0
		}
		off++
	}
	if off > len(buf) {
		return ErrSerializedTooBig
	}
	return nil
}

func deserializeTableMetadata(buf []byte) (*tableMetadata, error) {
	off := 0
	get32 := func() uint32 {
		v := bx.U32(buf[off : off+4])
		off += 4
		return v
	}
	getStr := func() string {
		n := get32()
		s := string(buf[off : off+int(n)])
		off += int(n)
		return s
	}

	tm := &tableMetadata{}
	tm.TableID = get32()
	tm.Name = getStr()
	tm.FileBase = getStr()
	tm.PageCount = get32()

	numCols := binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	cols := make([]record.Column, 0, numCols)
	for i := uint16(0); i < numCols; i++ {
		nameLen := binary.LittleEndian.Uint16(buf[off : off+2])
		off += 2
		name := string(buf[off : off+int(nameLen)])
		off += int(nameLen)
		typ := record.ColumnType(buf[off])
		off++
		nullable := buf[off] != 0
		off++
		cols = append(cols, record.Column{Name: name, Type: typ, Nullable: nullable})
	}
	tm.Schema = record.Schema{Cols: cols}
	return tm, nil
}

// indexMetadata is the on-disk form of an index's own meta page.
type indexMetadata struct {
	IndexID   uint32
	Name      string
	TableName string
	KeyColumn string
	FileBase  string
}

func (im *indexMetadata) serializeTo(buf []byte) error {
	off := 0
	put32 := func(v uint32) {
		bx.PutU32(buf[off:off+4], v)
		off += 4
	}
	putStr := func(s string) {
		put32(uint32(len(s)))
		copy(buf[off:], s)
		off += len(s)
	}

	put32(im.IndexID)
	putStr(im.Name)
	putStr(im.TableName)
	putStr(im.KeyColumn)
	putStr(im.FileBase)

	if off > len(buf) {
		return ErrSerializedTooBig
	}
	return nil
}

func deserializeIndexMetadata(buf []byte) (*indexMetadata, error) {
	off := 0
	get32 := func() uint32 {
		v := bx.U32(buf[off : off+4])
		off += 4
		return v
	}
	getStr := func() string {
		n := get32()
		s := string(buf[off : off+int(n)])
		off += int(n)
		return s
	}

	im := &indexMetadata{}
	im.IndexID = get32()
	im.Name = getStr()
	im.TableName = getStr()
	im.KeyColumn = getStr()
	im.FileBase = getStr()
	return im, nil
}
