package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/buffer"
	"github.com/tuannm99/novasql/internal/bufferpool"
	"github.com/tuannm99/novasql/internal/diskmgr"
	"github.com/tuannm99/novasql/internal/record"
	"github.com/tuannm99/novasql/internal/storage"
)

type fakeHeapPool struct {
	gp *bufferpool.GlobalPool
}

func (f fakeHeapPool) View(fs storage.FileSet) bufferpool.Manager {
	return f.gp.View(fs)
}

func openForTest(t *testing.T, dir string, init bool) (*Manager, func()) {
	t.Helper()
	sm := storage.NewStorageManager()
	disk, err := diskmgr.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	bpm := buffer.NewManager(disk, 16)
	hp := fakeHeapPool{gp: bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)}

	var m *Manager
	if init {
		m, err = Init(disk, bpm, sm, hp, dir)
	} else {
		m, err = Load(disk, bpm, sm, hp, dir)
	}
	require.NoError(t, err)
	return m, func() { _ = disk.Close() }
}

func usersSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64, Nullable: false},
		{Name: "name", Type: record.ColText, Nullable: false},
	}}
}

func TestManager_CreateTable_DuplicateRejected(t *testing.T) {
	dir := t.TempDir()
	m, closeFn := openForTest(t, dir, true)
	defer closeFn()

	_, err := m.CreateTable("t1", usersSchema())
	require.NoError(t, err)

	_, err = m.CreateTable("t1", usersSchema())
	require.ErrorIs(t, err, ErrTableAlreadyExist)
}

func TestManager_CreateIndex_ValidatesColumn(t *testing.T) {
	dir := t.TempDir()
	m, closeFn := openForTest(t, dir, true)
	defer closeFn()

	_, err := m.CreateTable("t1", usersSchema())
	require.NoError(t, err)

	_, err = m.CreateIndex("t1", "i1", "nope")
	require.ErrorIs(t, err, ErrColumnNotExist)

	_, err = m.CreateIndex("t1", "i1", "id")
	require.NoError(t, err)

	_, err = m.CreateIndex("t1", "i1", "id")
	require.ErrorIs(t, err, ErrIndexAlreadyExist)
}

// TestManager_SurvivesRestart grounds spec scenario 5: CreateTable +
// CreateIndex, close, reopen in load mode, both are still resolvable.
func TestManager_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	m, closeFn := openForTest(t, dir, true)
	_, err := m.CreateTable("t1", usersSchema())
	require.NoError(t, err)
	_, err = m.CreateIndex("t1", "i1", "id")
	require.NoError(t, err)
	closeFn()

	m2, closeFn2 := openForTest(t, dir, false)
	defer closeFn2()

	tinfo, err := m2.GetTable("t1")
	require.NoError(t, err)
	require.Equal(t, "t1", tinfo.Name)
	require.Equal(t, 2, tinfo.Schema.NumCols())

	iinfo, err := m2.GetIndex("t1", "i1")
	require.NoError(t, err)
	require.Equal(t, "id", iinfo.KeyColumn)
}

func TestManager_DropTable_DropsItsIndexesToo(t *testing.T) {
	dir := t.TempDir()
	m, closeFn := openForTest(t, dir, true)
	defer closeFn()

	_, err := m.CreateTable("t1", usersSchema())
	require.NoError(t, err)
	_, err = m.CreateIndex("t1", "i1", "id")
	require.NoError(t, err)

	require.NoError(t, m.DropTable("t1"))

	_, err = m.GetTable("t1")
	require.ErrorIs(t, err, ErrTableNotExist)
	_, err = m.GetIndex("t1", "i1")
	require.ErrorIs(t, err, ErrIndexNotFound)
}

func TestManager_DropIndex(t *testing.T) {
	dir := t.TempDir()
	m, closeFn := openForTest(t, dir, true)
	defer closeFn()

	_, err := m.CreateTable("t1", usersSchema())
	require.NoError(t, err)
	_, err = m.CreateIndex("t1", "i1", "id")
	require.NoError(t, err)

	require.NoError(t, m.DropIndex("t1", "i1"))
	_, err = m.GetIndex("t1", "i1")
	require.ErrorIs(t, err, ErrIndexNotFound)

	_, err = m.GetTable("t1")
	require.NoError(t, err)
}

func TestManager_GetTables_OrderedByID(t *testing.T) {
	dir := t.TempDir()
	m, closeFn := openForTest(t, dir, true)
	defer closeFn()

	_, err := m.CreateTable("b", usersSchema())
	require.NoError(t, err)
	_, err = m.CreateTable("a", usersSchema())
	require.NoError(t, err)

	tables := m.GetTables()
	require.Len(t, tables, 2)
	require.Equal(t, "b", tables[0].Name)
	require.Equal(t, "a", tables[1].Name)
}
