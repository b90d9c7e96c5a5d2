// Package sbrk provides the arena underneath a [malloc.Heap]: a contiguous
// byte region with a monotonically advancing break pointer.
//
// The arena is a single reserved slab; the break only ever moves up, and
// addresses handed out by [Mem.Sbrk] stay valid for the life of the Mem.
// Memory is never returned, matching the classic sbrk contract.
package sbrk

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/flier/memutil/internal/debug"
	"github.com/flier/memutil/pkg/xunsafe"
)

// DefaultLimit is the slab capacity used by [Default], 20 MB.
const DefaultLimit = 20 << 20

// ErrLimit is returned by [Mem.Sbrk] when growing would pass the slab limit.
var ErrLimit = errors.New("sbrk: arena limit reached")

// Mem is a fixed-capacity arena with sbrk semantics.
//
// The zero Mem is not usable; construct one with [New] or [Default].
type Mem struct {
	_ xunsafe.NoCopy

	// slab's length is the current break; its capacity never changes, so
	// pointers into it are stable.
	slab []byte

	// start is cached so that an empty slab still has a well-defined low
	// address.
	start *byte
}

// New reserves a slab of the given capacity and returns an arena whose break
// sits at its start.
func New(limit int) *Mem {
	if limit <= 0 {
		limit = DefaultLimit
	}

	slab := make([]byte, 0, limit)

	return &Mem{slab: slab, start: unsafe.SliceData(slab)}
}

// Default returns an arena with [DefaultLimit] capacity.
func Default() *Mem { return New(DefaultLimit) }

// Sbrk advances the break by n bytes and returns the address of the first
// newly valid byte.
//
// On failure the break does not move. Growing past the slab limit returns an
// error wrapping [ErrLimit].
func (m *Mem) Sbrk(n int) (*byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("sbrk: negative increment %d", n)
	}

	brk := len(m.slab)
	if brk+n > cap(m.slab) {
		return nil, fmt.Errorf("sbrk: break %d + %d exceeds %d: %w", brk, n, cap(m.slab), ErrLimit)
	}

	m.slab = m.slab[:brk+n]

	p := xunsafe.ByteAdd[byte](m.start, brk)
	debug.Assert(xunsafe.AddrOf(p) == m.Lo().Add(brk), "break address out of step with slab")

	return p, nil
}

// Lo returns the lowest valid arena address.
func (m *Mem) Lo() xunsafe.Addr[byte] {
	return xunsafe.AddrOf(m.start)
}

// Hi returns the highest valid arena address, the byte just below the break.
// Before the first Sbrk, Hi is below Lo.
func (m *Mem) Hi() xunsafe.Addr[byte] {
	return m.Lo().Add(len(m.slab) - 1)
}

// Size returns the number of bytes between the arena start and the break.
func (m *Mem) Size() int { return len(m.slab) }
