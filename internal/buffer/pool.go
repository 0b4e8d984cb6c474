// Package buffer implements the pin-counted BufferPoolManager and
// LRUReplacer that sit in front of internal/diskmgr for the system
// catalog's own metadata pages. It is independent from
// internal/bufferpool, which serves the table heap/B-tree data path with
// a CLOCK replacement policy over the segmented per-relation storage
// manager.
package buffer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tuannm99/novasql/internal/diskmgr"
)

const logPrefix = "buffer: "

var (
	ErrNoFreeFrame  = errors.New("buffer: no free frame available (all pinned)")
	ErrPagePinned   = errors.New("buffer: page is pinned")
	ErrPageNotFound = errors.New("buffer: page not resident in pool")
	ErrAllocFailed  = errors.New("buffer: disk manager allocation failed")
)

// Frame is one buffer-pool slot: the resident logical page id, its
// PAGE_SIZE data buffer, a pin count, and a dirty flag.
type Frame struct {
	PageID   int32
	Data     []byte
	PinCount int32
	Dirty    bool
}

// Manager is the fixed-size frame pool fronting a diskmgr.Manager. A
// single coarse mutex (held by the exported methods below via an internal
// lock) serializes fetch/new/unpin/flush/delete, per spec.md's
// conservative default concurrency granularity.
type Manager struct {
	disk *diskmgr.Manager

	poolSize  int
	frames    []*Frame
	pageTable map[int32]int // logical page id -> frame index
	freeList  []int         // frame indices owning no page
	replacer  *LRUReplacer

	mu sync.Mutex
}

// NewManager creates a BufferPoolManager with poolSize frames backed by
// disk.
func NewManager(disk *diskmgr.Manager, poolSize int) *Manager {
	if poolSize <= 0 {
		poolSize = 16
	}
	freeList := make([]int, poolSize)
	for i := range freeList {
		freeList[i] = i
	}
	return &Manager{
		disk:      disk,
		poolSize:  poolSize,
		frames:    make([]*Frame, poolSize),
		pageTable: make(map[int32]int, poolSize),
		freeList:  freeList,
		replacer:  NewLRUReplacer(poolSize),
	}
}

// FetchPage returns the frame holding logicalID, pinning it. On a miss it
// loads the page from disk into a free or victim frame.
func (m *Manager) FetchPage(logicalID int32) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if logicalID < 0 {
		return nil, diskmgr.ErrInvalidPageID
	}

	if idx, ok := m.pageTable[logicalID]; ok {
		f := m.frames[idx]
		if f.PinCount == 0 {
			m.replacer.Pin(idx)
		}
		f.PinCount++
		slog.Debug(logPrefix+"fetch hit", "pageID", logicalID, "pin", f.PinCount)
		return f, nil
	}

	idx, err := m.findFreeFrameLocked()
	if err != nil {
		return nil, err
	}

	f := m.frames[idx]
	if f != nil && f.Dirty {
		if err := m.disk.WritePage(f.PageID, f.Data); err != nil {
			return nil, err
		}
	}
	if f != nil {
		delete(m.pageTable, f.PageID)
	}

	data := make([]byte, diskmgr.PageSize)
	if err := m.disk.ReadPage(logicalID, data); err != nil {
		return nil, err
	}

	newFrame := &Frame{PageID: logicalID, Data: data, PinCount: 1, Dirty: false}
	m.frames[idx] = newFrame
	m.pageTable[logicalID] = idx

	slog.Debug(logPrefix+"fetch miss, loaded from disk", "pageID", logicalID, "frameIdx", idx)
	return newFrame, nil
}

// NewPage allocates a fresh logical page via the disk manager, installs it
// in a free or victim frame zeroed out, and returns it pinned.
func (m *Manager) NewPage() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.findFreeFrameLocked()
	if err != nil {
		return nil, err
	}

	victim := m.frames[idx]
	if victim != nil && victim.Dirty {
		if err := m.disk.WritePage(victim.PageID, victim.Data); err != nil {
			return nil, err
		}
	}

	logicalID, err := m.disk.AllocatePage()
	if err != nil || logicalID == diskmgr.InvalidPageID {
		// Restore the frame to the free list unchanged.
		m.freeList = append(m.freeList, idx)
		if err == nil {
			err = ErrAllocFailed
		}
		return nil, err
	}

	if victim != nil {
		delete(m.pageTable, victim.PageID)
	}

	newFrame := &Frame{
		PageID:   logicalID,
		Data:     make([]byte, diskmgr.PageSize),
		PinCount: 1,
		Dirty:    false,
	}
	m.frames[idx] = newFrame
	m.pageTable[logicalID] = idx

	slog.Debug(logPrefix+"new page", "pageID", logicalID, "frameIdx", idx)
	return newFrame, nil
}

// UnpinPage decrements the pin count of a resident page, OR-ing dirtyHint
// into the sticky dirty bit. Returns false if the page is not resident, or
// if its pin count is already zero (logged as a warning, not treated as
// idempotent success).
func (m *Manager) UnpinPage(logicalID int32, dirtyHint bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[logicalID]
	if !ok {
		return false
	}
	f := m.frames[idx]
	if f.PinCount == 0 {
		slog.Warn(logPrefix+"unpin called on already-unpinned page", "pageID", logicalID)
		return false
	}

	if dirtyHint {
		f.Dirty = true
	}
	f.PinCount--
	if f.PinCount == 0 {
		m.replacer.Unpin(idx)
	}
	return true
}

// FlushPage writes the frame's buffer to disk regardless of the dirty bit,
// then clears it. Does not change pin state. Returns false if not
// resident.
func (m *Manager) FlushPage(logicalID int32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[logicalID]
	if !ok {
		return false, nil
	}
	f := m.frames[idx]
	if err := m.disk.WritePage(f.PageID, f.Data); err != nil {
		return false, err
	}
	f.Dirty = false
	return true, nil
}

// FlushAll flushes every resident frame; used on manager shutdown.
func (m *Manager) FlushAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.frames {
		if f == nil {
			continue
		}
		if err := m.disk.WritePage(f.PageID, f.Data); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

// DeletePage deallocates the page on disk and removes it from the pool.
// Returns (true, nil) if the page was not resident — nothing to do in the
// pool, and the disk manager is left untouched since the caller may be
// deleting a page id that was never pinned through this pool at all — and
// (false, ErrPagePinned) if it is pinned.
func (m *Manager) DeletePage(logicalID int32) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.pageTable[logicalID]
	if !ok {
		return true, nil
	}

	f := m.frames[idx]
	if f.PinCount > 0 {
		return false, ErrPagePinned
	}

	if err := m.disk.DeAllocatePage(logicalID); err != nil {
		return false, err
	}

	delete(m.pageTable, logicalID)
	m.replacer.Pin(idx) // drop from eviction candidacy
	m.frames[idx] = nil
	m.freeList = append(m.freeList, idx)
	return true, nil
}

// findFreeFrameLocked prefers the free list, else asks the replacer for a
// victim. Caller must hold m.mu.
func (m *Manager) findFreeFrameLocked() (int, error) {
	if n := len(m.freeList); n > 0 {
		idx := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		return idx, nil
	}
	idx, ok := m.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrame
	}
	return idx, nil
}
