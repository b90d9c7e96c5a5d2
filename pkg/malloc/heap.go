package malloc

// extend grows the arena by at least words machine words and returns the
// resulting free block. It is the only path that acquires new memory.
func (h *Heap) extend(words int) (*byte, error) {
	// An even word count keeps the new block a multiple of the double word.
	if words%2 != 0 {
		words++
	}
	size := max(words*Word, MinBlock)

	p, err := h.mem.Sbrk(size)
	if err != nil {
		return nil, err
	}

	// The word preceding the new region is the old epilogue; it becomes
	// the new block's header, and a fresh epilogue is written at the top.
	bp := p
	retag(bp, size, false)
	*hdr(nextBlock(bp)) = tag(0, true)

	h.log("extend", "%p+%#x", bp, size)

	// The block below the old epilogue may be free.
	return h.coalesce(bp), nil
}

// coalesce merges bp, whose tags are already clear, with any free arena
// neighbors, pushes the merged block onto the free list, and returns it.
//
// The prologue and epilogue are always allocated, so neither direction needs
// a boundary test.
func (h *Heap) coalesce(bp *byte) *byte {
	pfree := !prevAllocated(bp)
	nfree := !blockAllocated(nextBlock(bp))
	size := blockSize(bp)

	switch {
	case !pfree && !nfree: // no free neighbor

	case !pfree && nfree: // merge with successor
		next := nextBlock(bp)
		size += blockSize(next)
		h.removeFree(next)
		retag(bp, size, false)

	case pfree && !nfree: // merge with predecessor
		bp = prevBlock(bp)
		size += blockSize(bp)
		h.removeFree(bp)
		retag(bp, size, false)

	default: // merge with both
		next := nextBlock(bp)
		prev := prevBlock(bp)
		size += blockSize(prev) + blockSize(next)
		h.removeFree(prev)
		h.removeFree(next)
		bp = prev
		retag(bp, size, false)
	}

	h.log("coalesce", "%p+%#x", bp, size)
	h.pushFree(bp)

	return bp
}

// place marks asize bytes allocated at the head of free block bp, splitting
// off the remainder when it can hold a block of its own. A remainder below
// MinBlock cannot carry tags and links, so it stays inside the allocated
// block as slack.
func (h *Heap) place(bp *byte, asize int) {
	csize := blockSize(bp)

	if csize-asize >= MinBlock {
		retag(bp, asize, true)
		h.removeFree(bp)

		rest := nextBlock(bp)
		retag(rest, csize-asize, false)
		h.coalesce(rest)
	} else {
		retag(bp, csize, true)
		h.removeFree(bp)
	}
}
