package xunsafe

import (
	"unsafe"

	"github.com/flier/memutil/pkg/xunsafe/layout"
)

// Addr is the address of a T, carried as an integer rather than a pointer.
//
// Unlike a *T, an Addr can be compared, offset, and aligned without the
// compiler treating it as a reference; the zero Addr plays the role of nil.
// It does not keep the pointee alive, so it must only be dereferenced (via
// [Addr.AssertValid]) while the underlying allocation is reachable through
// some other pointer.
type Addr[T any] uintptr

// AddrOf returns the address of p.
func AddrOf[T any](p *T) Addr[T] {
	return Addr[T](uintptr(unsafe.Pointer(p)))
}

// EndOf returns the address one past the last element of s.
func EndOf[T any](s []T) Addr[T] {
	return AddrOf(unsafe.SliceData(s)).Add(len(s))
}

// AssertValid converts this address back into a pointer.
//
// The caller asserts that the pointee is still alive; see the warning on
// [Addr]. The zero address converts to nil.
func (a Addr[T]) AssertValid() *T {
	return (*T)(unsafe.Pointer(a)) //nolint:govet // integer-to-pointer is this type's whole job
}

// Add returns the address n elements past a, scaled by the size of T.
func (a Addr[T]) Add(n int) Addr[T] {
	return a + Addr[T](layout.Size[T]()*n)
}

// RoundUpTo rounds the address up to the given power-of-two alignment.
func (a Addr[T]) RoundUpTo(align int) Addr[T] {
	return Addr[T](layout.RoundUp(uintptr(a), uintptr(align)))
}

// Aligned reports whether the address is a multiple of align.
func (a Addr[T]) Aligned(align int) bool {
	return uintptr(a)%uintptr(align) == 0
}
