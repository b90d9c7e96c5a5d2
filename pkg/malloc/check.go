package malloc

import (
	"errors"
	"fmt"
	"io"

	"github.com/flier/memutil/pkg/xunsafe"
)

// The checker is a diagnostic: it verifies the structural invariants at a
// quiescent moment and reports violations as typed errors. Operations never
// run it themselves.

// BadSentinelError reports a prologue or epilogue whose tag has been
// disturbed.
type BadSentinelError struct {
	Which string
	Addr  xunsafe.Addr[byte]
	Tag   uintptr
}

func (e *BadSentinelError) Error() string {
	return fmt.Sprintf("malloc: bad %s tag %#x at %#x", e.Which, e.Tag, uintptr(e.Addr))
}

// TagMismatchError reports a block whose header and footer disagree.
type TagMismatchError struct {
	Addr           xunsafe.Addr[byte]
	Header, Footer uintptr
}

func (e *TagMismatchError) Error() string {
	return fmt.Sprintf("malloc: block %#x header %#x != footer %#x", uintptr(e.Addr), e.Header, e.Footer)
}

// MisalignedError reports a payload address off the double-word grid.
type MisalignedError struct {
	Addr xunsafe.Addr[byte]
}

func (e *MisalignedError) Error() string {
	return fmt.Sprintf("malloc: payload %#x not %d-byte aligned", uintptr(e.Addr), DWord)
}

// OverlapError reports a block whose extent is impossible: too small to carry
// its own metadata, so that its footer lies inside its neighbor, or large
// enough to run past the top of the arena.
type OverlapError struct {
	Addr xunsafe.Addr[byte]
	Size int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("malloc: block %#x size %d overlaps its neighbor", uintptr(e.Addr), e.Size)
}

// AdjacentFreeError reports two address-order neighbors that are both free,
// which coalescing should have merged.
type AdjacentFreeError struct {
	Addr, Next xunsafe.Addr[byte]
}

func (e *AdjacentFreeError) Error() string {
	return fmt.Sprintf("malloc: adjacent free blocks %#x and %#x", uintptr(e.Addr), uintptr(e.Next))
}

// BadLinkError reports a free-list defect: a link outside the arena, an
// allocated block on the list, or asymmetric prev/next chains.
type BadLinkError struct {
	Block, Link xunsafe.Addr[byte]
	Reason      string
}

func (e *BadLinkError) Error() string {
	return fmt.Sprintf("malloc: free list at %#x: %s (link %#x)", uintptr(e.Block), e.Reason, uintptr(e.Link))
}

// CountMismatchError reports disagreement between the number of free blocks
// seen by the arena walk and by the free-list traversal.
type CountMismatchError struct {
	Walk, List int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("malloc: %d free blocks in arena walk, %d on free list", e.Walk, e.List)
}

// Check verifies every structural invariant of the heap and returns nil, or
// the joined typed diagnostics for each violation found.
func (h *Heap) Check() error {
	var errs []error

	lo, hi := h.mem.Lo(), h.mem.Hi()
	inArena := func(p *byte) bool {
		a := xunsafe.AddrOf(p)
		return a >= lo && a <= hi
	}

	if got := *hdr(h.base); got != tag(MinBlock, true) {
		errs = append(errs, &BadSentinelError{Which: "prologue", Addr: xunsafe.AddrOf(h.base), Tag: got})
	}

	// Arena walk from the prologue. Counts free blocks, checks each
	// block's tags, and must land on the epilogue at the arena top.
	walkFree := 0
	walkBlocks := 0
	lastFree := false
	walkOK := true

	bp := h.base
	for {
		addr := xunsafe.AddrOf(bp)
		if !addr.Aligned(DWord) {
			errs = append(errs, &MisalignedError{Addr: addr})
			walkOK = false
			break // further navigation would compound the damage
		}

		size := blockSize(bp)
		if size == 0 {
			break
		}
		if size < MinBlock {
			errs = append(errs, &OverlapError{Addr: addr, Size: size})
			walkOK = false
			break
		}
		if *hdr(bp) != *ftr(bp) {
			errs = append(errs, &TagMismatchError{Addr: addr, Header: *hdr(bp), Footer: *ftr(bp)})
		}

		free := !blockAllocated(bp)
		if free {
			walkFree++
			if lastFree {
				errs = append(errs, &AdjacentFreeError{Addr: xunsafe.AddrOf(prevBlock(bp)), Next: addr})
			}
		}
		lastFree = free
		walkBlocks++

		next := nextBlock(bp)
		if !inArena(xunsafe.ByteAdd[byte](next, -Word)) {
			errs = append(errs, &OverlapError{Addr: addr, Size: size})
			walkOK = false
			break
		}
		bp = next
	}

	// An intact walk ends on a zero-size tag, which must be the allocated
	// epilogue occupying the last arena word.
	if walkOK {
		epi := *hdr(bp)
		at := xunsafe.AddrOf(xunsafe.Cast[byte](hdr(bp)))
		if !tagAllocated(epi) || at != hi.Add(1-Word) {
			errs = append(errs, &BadSentinelError{Which: "epilogue", Addr: at, Tag: epi})
		}
	}

	// Free-list traversal, bounded by the walk count to survive a cycle.
	listFree := 0
	steps := 0
	end := h.free
	for ; !blockAllocated(end); end = nextFree(end) {
		if steps++; steps > walkBlocks+1 {
			break
		}

		listFree++

		next := nextFree(end)
		if next == nil || !inArena(next) {
			errs = append(errs, &BadLinkError{
				Block:  xunsafe.AddrOf(end),
				Link:   xunsafe.AddrOf(next),
				Reason: "successor outside the arena",
			})
			break
		}
		if !blockAllocated(next) && prevFree(next) != end {
			errs = append(errs, &BadLinkError{
				Block:  xunsafe.AddrOf(end),
				Link:   xunsafe.AddrOf(next),
				Reason: "successor does not link back",
			})
		}
	}

	// Only the prologue sentinel may terminate the list; any other
	// allocated terminator is a stale entry.
	if blockAllocated(end) && end != h.base {
		errs = append(errs, &BadLinkError{
			Block:  xunsafe.AddrOf(end),
			Link:   xunsafe.AddrOf(end),
			Reason: "allocated block on the free list",
		})
	}

	if walkFree != listFree {
		errs = append(errs, &CountMismatchError{Walk: walkFree, List: listFree})
	}

	return errors.Join(errs...)
}

// span identifies a free block by arena offset and size, the
// position-independent shape Fingerprint digests.
type span struct {
	off, size int
}

// Fingerprint returns an order-independent digest of the free set. Two
// fingerprints of the same Heap are equal when its free blocks match as a
// multiset of (offset, size) pairs, and differ otherwise barring a hash
// collision. Each Heap hashes with its own random seed, so fingerprints of
// different heaps are not comparable.
func (h *Heap) Fingerprint() uint64 {
	var fp uint64

	lo := h.mem.Lo()
	for bp := h.free; !blockAllocated(bp); bp = nextFree(bp) {
		fp ^= h.hash.Hash(span{
			off:  int(xunsafe.AddrOf(bp) - lo),
			size: blockSize(bp),
		})
	}

	return fp
}

// FreeBytes returns the total size of all free blocks, tags included.
func (h *Heap) FreeBytes() int {
	total := 0
	for bp := h.free; !blockAllocated(bp); bp = nextFree(bp) {
		total += blockSize(bp)
	}
	return total
}

// FreeBlocks returns the number of blocks on the free list.
func (h *Heap) FreeBlocks() int {
	n := 0
	for bp := h.free; !blockAllocated(bp); bp = nextFree(bp) {
		n++
	}
	return n
}

// Dump writes one line per arena block to w: address, header and footer
// tags, and the list links of free blocks.
func (h *Heap) Dump(w io.Writer) {
	fmt.Fprintf(w, "heap base=%p free=%p\n", h.base, h.free)

	for bp := h.base; ; bp = nextBlock(bp) {
		hd := *hdr(bp)
		if tagSize(hd) == 0 {
			fmt.Fprintf(w, "%p: end of heap [%#x]\n", bp, hd)
			return
		}

		ft := *ftr(bp)
		fmt.Fprintf(w, "%p: header [%d:%c] footer [%d:%c]",
			bp, tagSize(hd), tagMark(hd), tagSize(ft), tagMark(ft))
		if !tagAllocated(hd) {
			fmt.Fprintf(w, " prev=%p next=%p", prevFree(bp), nextFree(bp))
		}
		fmt.Fprintln(w)
	}
}

func tagMark(t uintptr) byte {
	if tagAllocated(t) {
		return 'a'
	}
	return 'f'
}
