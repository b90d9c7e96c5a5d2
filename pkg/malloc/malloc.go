// Package malloc implements a general-purpose dynamic allocator over an
// sbrk-style arena: boundary-tagged blocks, an explicit doubly-linked free
// list with LIFO insertion, first-fit search, split-on-place, and four-case
// coalescing.
//
// # Heap layout
//
// The arena is a single contiguous region obtained from a [Memory] provider
// and grown monotonically. Every block carries a one-word header and an
// identical one-word footer packing (size, allocated); the footer lets a
// block find its predecessor in constant time. A free block repurposes its
// first two double words as the links of the free list.
//
//	| pad | prologue (6W, allocated) | blocks ... | epilogue (0, allocated) |
//
// The prologue and epilogue are sentinels: the neighbors of the first and
// last real block always read as allocated, so coalescing needs no boundary
// tests. The prologue payload additionally terminates the free list, so a
// listed block always has a non-nil successor and unlinking needs no nil
// check on it.
//
// # Usage
//
//	h, err := malloc.New(sbrk.Default())
//	if err != nil {
//		// the provider refused the initial arena
//	}
//
//	p := h.Alloc(64)      // nil when the provider is exhausted
//	p = h.Realloc(p, 128) // grows in place when the next block is free
//	h.Free(p)
//
// Payload addresses are double-word aligned. Alloc(0) returns nil, Free(nil)
// is a no-op, and Realloc(nil, n) behaves as Alloc(n).
//
// # Concurrency
//
// A Heap is not safe for concurrent use. Nothing blocks or suspends; callers
// needing concurrency must serialize externally.
package malloc

import (
	"github.com/dolthub/maphash"

	"github.com/flier/memutil/internal/debug"
	"github.com/flier/memutil/pkg/xunsafe"
	"github.com/flier/memutil/pkg/xunsafe/layout"
)

// Memory is the arena provider underneath a [Heap].
//
// The provider owns a contiguous region whose addresses never move. [Heap]
// acquires bytes exclusively through Sbrk and never gives them back.
type Memory interface {
	// Sbrk appends n bytes to the arena and returns the address of the
	// first newly valid byte. On failure the arena is unchanged.
	Sbrk(n int) (*byte, error)

	// Lo returns the lowest valid arena address.
	Lo() xunsafe.Addr[byte]

	// Hi returns the highest valid arena address.
	Hi() xunsafe.Addr[byte]
}

// Heap is one allocator instance. Multiple independent heaps may coexist,
// each over its own provider.
type Heap struct {
	_ xunsafe.NoCopy

	mem Memory

	// base is the prologue block's payload. It is permanently marked
	// allocated and doubles as the free list's terminal sentinel.
	base *byte

	// free is the most recently inserted free block, or base when the
	// list is empty.
	free *byte

	// hash digests free blocks for Fingerprint.
	hash maphash.Hasher[span]
}

// New lays out an empty heap on the provider and seeds it with one free
// chunk.
//
// The initial break request is eight words: an alignment padding word, the
// six-word prologue, and the epilogue header, which must be the last arena
// word so that the first extension's header lands on it.
func New(mem Memory) (*Heap, error) {
	p, err := mem.Sbrk(8 * Word)
	if err != nil {
		return nil, err
	}

	xunsafe.ByteStore(p, 0, uintptr(0)) // alignment padding
	xunsafe.ByteStore(p, Word, tag(MinBlock, true))
	xunsafe.ByteStore(p, MinBlock, tag(MinBlock, true))
	xunsafe.ByteStore(p, MinBlock+Word, tag(0, true)) // epilogue

	base := xunsafe.ByteAdd[byte](p, DWord)
	setPrevFree(base, nil)
	setNextFree(base, nil)

	h := &Heap{
		mem:  mem,
		base: base,
		free: base,
		hash: maphash.NewHasher[span](),
	}

	if _, err := h.extend(ChunkSize / Word); err != nil {
		return nil, err
	}

	return h, nil
}

// Alloc returns a block with at least size payload bytes, or nil when size
// is not positive or the provider is exhausted. The returned address is
// double-word aligned.
func (h *Heap) Alloc(size int) *byte {
	if size <= 0 {
		return nil
	}

	// Payload plus header and footer, rounded to the double word, floored
	// at the minimum block.
	asize := max(layout.RoundUp(size+DWord, DWord), MinBlock)

	bp := h.firstFit(asize)
	if bp == nil {
		var err error
		if bp, err = h.extend(max(asize, ChunkSize) / Word); err != nil {
			return nil
		}
	}

	h.place(bp, asize)
	h.log("alloc", "%d -> %p+%#x", size, bp, asize)

	return bp
}

// Free returns bp's block to the free list, merging it with any free arena
// neighbors. Free(nil) is a no-op.
func (h *Heap) Free(bp *byte) {
	if bp == nil {
		return
	}

	size := blockSize(bp)
	retag(bp, size, false)

	merged := h.coalesce(bp)
	h.log("free", "%p+%#x -> %p+%#x", bp, size, merged, blockSize(merged))
}

// Realloc resizes bp's block to hold at least size payload bytes.
//
// A nil bp degenerates to Alloc; size zero frees the block and returns nil,
// and a negative size returns nil and leaves bp allocated. Shrinking returns
// bp unchanged. Growing absorbs a
// free arena successor in place when it suffices, and otherwise moves the
// payload to a fresh block, returning nil (with bp intact) if the provider
// is exhausted.
func (h *Heap) Realloc(bp *byte, size int) *byte {
	if bp == nil {
		return h.Alloc(size)
	}
	if size < 0 {
		return nil
	}
	if size == 0 {
		h.Free(bp)
		return nil
	}

	old := blockSize(bp)
	want := size + DWord
	if want <= old {
		return bp
	}

	if next := nextBlock(bp); !blockAllocated(next) && old+blockSize(next) >= want {
		csize := old + blockSize(next)
		h.removeFree(next)
		retag(bp, csize, true)
		h.log("realloc", "%p+%#x -> +%#x in place", bp, old, csize)
		return bp
	}

	q := h.Alloc(want)
	if q == nil {
		return nil
	}

	xunsafe.Copy(q, bp, old-DWord)
	h.Free(bp)
	h.log("realloc", "%p+%#x -> %p", bp, old, q)

	return q
}

func (h *Heap) log(op, format string, args ...any) {
	debug.Log([]any{"%p free=%p", h, h.free}, op, format, args...)
}
