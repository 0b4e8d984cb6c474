// Package diskmgr implements the on-disk page allocator for the system
// catalog file: logical-to-physical page translation and a two-level
// bitmap free-space map, modeled after a single dedicated database file
// (distinct from the table heap's segmented storage.StorageManager).
package diskmgr

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novasql/internal/alias/bx"
)

const (
	logPrefix = "diskmgr: "

	// PageSize is the fixed physical page size for the catalog's dedicated
	// database file. It is a distinct address space from the table heap's
	// 8KiB pages.
	PageSize = 4096

	// InvalidPageID is the sentinel logical page id meaning "no page".
	InvalidPageID int32 = -1

	metaPageID = 0

	metaHeaderBytes = 8 // num_allocated_pages(4) + num_extents(4)
	maxExtents      = (PageSize - metaHeaderBytes) / 4

	bitmapHeaderBytes = 8 // page_allocated(4) + next_free_page(4)

	// BitmapSize is the number of data pages one bitmap page can track.
	BitmapSize = (PageSize - bitmapHeaderBytes) * 8
)

var (
	ErrInvalidPageID  = errors.New("diskmgr: invalid logical page id")
	ErrAllocatorFull  = errors.New("diskmgr: no addressable extent remains")
	ErrBadPageBuffer  = errors.New("diskmgr: page buffer must be exactly PageSize bytes")
	ErrManagerClosed  = errors.New("diskmgr: manager is closed")
)

// Manager owns one dedicated database file and maps logical page ids used
// by the buffer pool to physical offsets within that file, allocating and
// freeing pages through a two-level bitmap (DiskFileMeta + BitmapPage).
type Manager struct {
	mu sync.Mutex

	f        *os.File
	fileName string
	closed   bool

	meta *fileMeta
}

// fileMeta mirrors the physical meta page (physical id 0) held in memory
// for the manager's whole lifetime and flushed back to disk on Close.
type fileMeta struct {
	numAllocatedPages uint32
	numExtents        uint32
	extentUsedPage    [maxExtents]uint32
}

// Open opens (creating if necessary) the database file at path and loads
// its meta page into memory.
func Open(path string) (*Manager, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("diskmgr: create dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("diskmgr: open %s: %w", path, err)
	}

	m := &Manager{f: f, fileName: path, meta: &fileMeta{}}

	buf := make([]byte, PageSize)
	if err := m.readPhysicalPage(metaPageID, buf); err != nil {
		_ = f.Close()
		return nil, err
	}
	m.meta.deserializeFrom(buf)

	return m, nil
}

// Close flushes the meta page and closes the file handle. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	buf := make([]byte, PageSize)
	m.meta.serializeTo(buf)
	if err := m.writePhysicalPageLocked(metaPageID, buf); err != nil {
		return err
	}

	err := m.f.Close()
	m.closed = true
	return err
}

// ReadPage reads the logical page into dst (must be len == PageSize).
// Reading past EOF yields a zeroed page.
func (m *Manager) ReadPage(logicalID int32, dst []byte) error {
	if logicalID < 0 {
		return ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	return m.readPhysicalPage(MapPageID(logicalID), dst)
}

// WritePage writes src (must be len == PageSize) to the logical page.
func (m *Manager) WritePage(logicalID int32, src []byte) error {
	if logicalID < 0 {
		return ErrInvalidPageID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	return m.writePhysicalPageLocked(MapPageID(logicalID), src)
}

// AllocatePage scans extents for the first with spare capacity, asks its
// bitmap page for a free offset, and returns the new logical page id, or
// InvalidPageID if the allocator is exhausted.
func (m *Manager) AllocatePage() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return InvalidPageID, ErrManagerClosed
	}

	var extentID uint32
	found := false
	for extentID = 0; extentID < m.meta.numExtents; extentID++ {
		if m.meta.extentUsedPage[extentID] < BitmapSize {
			found = true
			break
		}
	}
	if !found {
		if m.meta.numExtents >= maxExtents {
			slog.Error(logPrefix+"allocator exhausted", "numExtents", m.meta.numExtents)
			return InvalidPageID, ErrAllocatorFull
		}
		extentID = m.meta.numExtents
	}

	bitmapPhysicalID := 1 + int32(extentID)*(BitmapSize+1)
	buf := make([]byte, PageSize)
	if err := m.readPhysicalPage(bitmapPhysicalID, buf); err != nil {
		return InvalidPageID, err
	}
	bp := &BitmapPage{}
	bp.deserializeFrom(buf)

	offset, ok := bp.Allocate()
	if !ok {
		return InvalidPageID, ErrAllocatorFull
	}
	bp.serializeTo(buf)
	if err := m.writePhysicalPageLocked(bitmapPhysicalID, buf); err != nil {
		return InvalidPageID, err
	}

	m.meta.numAllocatedPages++
	if extentID+1 > m.meta.numExtents {
		m.meta.numExtents = extentID + 1
	}
	m.meta.extentUsedPage[extentID]++

	logicalID := int32(extentID)*BitmapSize + int32(offset)
	slog.Debug(logPrefix+"allocated page", "logicalID", logicalID, "extentID", extentID)
	return logicalID, nil
}

// DeAllocatePage frees a previously allocated logical page. No-op if
// already free.
func (m *Manager) DeAllocatePage(logicalID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}

	free, err := m.isPageFreeLocked(logicalID)
	if err != nil {
		return err
	}
	if free {
		return nil
	}

	extentID := uint32(logicalID) / BitmapSize
	offset := uint32(logicalID) % BitmapSize
	bitmapPhysicalID := 1 + int32(extentID)*(BitmapSize+1)

	buf := make([]byte, PageSize)
	if err := m.readPhysicalPage(bitmapPhysicalID, buf); err != nil {
		return err
	}
	bp := &BitmapPage{}
	bp.deserializeFrom(buf)

	if !bp.Deallocate(offset) {
		slog.Warn(logPrefix+"failed to deallocate page", "logicalID", logicalID)
		return nil
	}
	bp.serializeTo(buf)
	if err := m.writePhysicalPageLocked(bitmapPhysicalID, buf); err != nil {
		return err
	}

	m.meta.numAllocatedPages--
	m.meta.extentUsedPage[extentID]--
	return nil
}

// IsPageFree reports whether a logical page is currently unallocated.
// Out-of-range ids return false.
func (m *Manager) IsPageFree(logicalID int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	free, err := m.isPageFreeLocked(logicalID)
	if err != nil {
		return false
	}
	return free
}

func (m *Manager) isPageFreeLocked(logicalID int32) (bool, error) {
	if logicalID < 0 {
		return false, nil
	}
	extentID := uint32(logicalID) / BitmapSize
	if extentID >= m.meta.numExtents {
		return true, nil
	}
	offset := uint32(logicalID) % BitmapSize
	bitmapPhysicalID := 1 + int32(extentID)*(BitmapSize+1)

	buf := make([]byte, PageSize)
	if err := m.readPhysicalPage(bitmapPhysicalID, buf); err != nil {
		return false, err
	}
	bp := &BitmapPage{}
	bp.deserializeFrom(buf)
	return bp.IsFree(offset), nil
}

// MapPageID translates a logical page id to its physical offset index:
// one meta page, then repeating groups of (one bitmap page + BitmapSize
// data pages).
func MapPageID(logicalID int32) int32 {
	return logicalID + logicalID/BitmapSize + 2
}

func (m *Manager) readPhysicalPage(physicalID int32, dst []byte) error {
	if len(dst) != PageSize {
		return ErrBadPageBuffer
	}
	offset := int64(physicalID) * PageSize
	n, err := m.f.ReadAt(dst, offset)
	if err != nil && n == 0 {
		if errors.Is(err, os.ErrClosed) {
			return err
		}
		// Read past EOF or short read: zero-fill.
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

func (m *Manager) writePhysicalPageLocked(physicalID int32, src []byte) error {
	if len(src) != PageSize {
		return ErrBadPageBuffer
	}
	offset := int64(physicalID) * PageSize
	if _, err := m.f.WriteAt(src, offset); err != nil {
		slog.Error(logPrefix+"write error", "physicalID", physicalID, "err", err)
		return err
	}
	return m.f.Sync()
}

func (fm *fileMeta) serializeTo(buf []byte) {
	bx.PutU32(buf[0:4], fm.numAllocatedPages)
	bx.PutU32(buf[4:8], fm.numExtents)
	off := metaHeaderBytes
	for i := 0; i < maxExtents; i++ {
		bx.PutU32(buf[off:off+4], fm.extentUsedPage[i])
		off += 4
	}
}

func (fm *fileMeta) deserializeFrom(buf []byte) {
	fm.numAllocatedPages = bx.U32(buf[0:4])
	fm.numExtents = bx.U32(buf[4:8])
	off := metaHeaderBytes
	for i := 0; i < maxExtents; i++ {
		fm.extentUsedPage[i] = bx.U32(buf[off : off+4])
		off += 4
	}
}
