package malloc

import "github.com/flier/memutil/internal/debug"

// The free list is unordered, doubly linked, and LIFO: coalesce pushes every
// freed block onto the head. It terminates at the prologue sentinel rather
// than nil, so traversal and unlinking never test for a null successor; the
// sentinel is recognized by its allocated bit.

// pushFree inserts bp at the head of the free list.
func (h *Heap) pushFree(bp *byte) {
	setNextFree(bp, h.free)
	setPrevFree(h.free, bp)
	setPrevFree(bp, nil)
	h.free = bp
}

// removeFree unlinks bp from the free list.
func (h *Heap) removeFree(bp *byte) {
	next := nextFree(bp)
	debug.Assert(next != nil, "free list lost its sentinel at %p", bp)

	if prev := prevFree(bp); prev != nil {
		setNextFree(prev, next)
	} else {
		h.free = next
	}
	setPrevFree(next, prevFree(bp))
}

// firstFit returns the first free block holding at least asize bytes, or nil.
func (h *Heap) firstFit(asize int) *byte {
	for bp := h.free; !blockAllocated(bp); bp = nextFree(bp) {
		if asize <= blockSize(bp) {
			return bp
		}
	}
	return nil
}
