package buffer

import "container/list"

// LRUReplacer selects a victim frame among the frames an owning
// BufferPoolManager has marked unpinned. It maintains an ordered list of
// candidate frame ids from least to most recently unpinned, plus a map for
// O(1) removal, mirroring the list+hash-map shape of a classic LRU
// replacer.
type LRUReplacer struct {
	capacity int
	lruList  *list.List
	index    map[int]*list.Element
}

// NewLRUReplacer creates a replacer tracking up to capacity frame ids.
func NewLRUReplacer(capacity int) *LRUReplacer {
	return &LRUReplacer{
		capacity: capacity,
		lruList:  list.New(),
		index:    make(map[int]*list.Element, capacity),
	}
}

// Victim removes and returns the least-recently-unpinned frame id. Returns
// false if no frame is currently evictable.
func (r *LRUReplacer) Victim() (int, bool) {
	front := r.lruList.Front()
	if front == nil {
		return 0, false
	}
	frameID := front.Value.(int)
	r.lruList.Remove(front)
	delete(r.index, frameID)
	return frameID, true
}

// Pin removes frameID from eviction candidacy, if present. Called when a
// frame becomes pinned (pin_count goes 0 -> >0).
func (r *LRUReplacer) Pin(frameID int) {
	if el, ok := r.index[frameID]; ok {
		r.lruList.Remove(el)
		delete(r.index, frameID)
	}
}

// Unpin makes frameID a victim candidate at the most-recently-unpinned end,
// if not already present. Called when a frame's pin_count drops to 0.
func (r *LRUReplacer) Unpin(frameID int) {
	if _, ok := r.index[frameID]; ok {
		return
	}
	el := r.lruList.PushBack(frameID)
	r.index[frameID] = el
}

// Size returns the number of frames currently eligible for eviction.
func (r *LRUReplacer) Size() int {
	return r.lruList.Len()
}
