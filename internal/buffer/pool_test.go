package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novasql/internal/diskmgr"
)

func newTestManager(t *testing.T, poolSize int) *Manager {
	t.Helper()
	dir := t.TempDir()
	disk, err := diskmgr.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = disk.Close() })
	return NewManager(disk, poolSize)
}

func TestManager_NewPageThenFetchPins(t *testing.T) {
	bpm := newTestManager(t, 4)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	require.Equal(t, int32(1), f.PinCount)

	f2, err := bpm.FetchPage(f.PageID)
	require.NoError(t, err)
	require.Same(t, f, f2)
	require.Equal(t, int32(2), f.PinCount)
}

func TestManager_NewPage_NoFreeFrame(t *testing.T) {
	bpm := newTestManager(t, 1)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotNil(t, f)

	_, err = bpm.NewPage()
	require.ErrorIs(t, err, ErrNoFreeFrame)
}

func TestManager_UnpinOnZeroPinCount(t *testing.T) {
	bpm := newTestManager(t, 2)

	f, err := bpm.NewPage()
	require.NoError(t, err)

	require.True(t, bpm.UnpinPage(f.PageID, false))
	require.False(t, bpm.UnpinPage(f.PageID, false), "unpinning an already-unpinned page must fail")
}

func TestManager_EvictDirtyVictimFlushesToDisk(t *testing.T) {
	bpm := newTestManager(t, 1)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	f.Data[0] = 0x7A
	require.True(t, bpm.UnpinPage(f.PageID, true))

	f2, err := bpm.NewPage()
	require.NoError(t, err)
	require.NotEqual(t, f.PageID, f2.PageID)

	reread := make([]byte, diskmgr.PageSize)
	require.NoError(t, bpm.disk.ReadPage(f.PageID, reread))
	require.Equal(t, byte(0x7A), reread[0])
}

func TestManager_DeletePage_RejectsPinned(t *testing.T) {
	bpm := newTestManager(t, 2)

	f, err := bpm.NewPage()
	require.NoError(t, err)

	_, err = bpm.DeletePage(f.PageID)
	require.ErrorIs(t, err, ErrPagePinned)

	require.True(t, bpm.UnpinPage(f.PageID, false))
	ok, err := bpm.DeletePage(f.PageID)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, bpm.disk.IsPageFree(f.PageID))
}

func TestManager_DeletePage_NotResidentLeavesDiskAlone(t *testing.T) {
	bpm := newTestManager(t, 2)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(f.PageID, false))
	_, err = bpm.FlushPage(f.PageID)
	require.NoError(t, err)

	// Drop f from the page table directly, so f is still allocated on
	// disk but no longer resident in the pool.
	other, err := bpm.NewPage()
	require.NoError(t, err)
	require.True(t, bpm.UnpinPage(other.PageID, false))
	delete(bpm.pageTable, f.PageID)

	ok, err := bpm.DeletePage(f.PageID)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, bpm.disk.IsPageFree(f.PageID), "a not-resident page's disk space must be untouched")
}

func TestManager_FlushPage(t *testing.T) {
	bpm := newTestManager(t, 2)

	f, err := bpm.NewPage()
	require.NoError(t, err)
	f.Data[10] = 99
	f.Dirty = true

	ok, err := bpm.FlushPage(f.PageID)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, f.Dirty)

	reread := make([]byte, diskmgr.PageSize)
	require.NoError(t, bpm.disk.ReadPage(f.PageID, reread))
	require.Equal(t, byte(99), reread[10])
}
