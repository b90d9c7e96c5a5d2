// Package xunsafe wraps the raw pointer arithmetic the rest of this module
// needs behind a small typed surface, so that raw pointer arithmetic lives in
// one place. Elsewhere the module uses package unsafe only for sizes and
// slice data pointers.
//
// Everything here is a thin veneer over unsafe.Pointer and uintptr. The
// helpers fall into three groups:
//
//   - [Cast], [ByteAdd], [ByteLoad], [ByteStore] and friends: pointer
//     casts and unscaled byte-offset access.
//   - [Addr]: an address carried as an integer, for code that wants to do
//     arithmetic and comparisons on locations without holding a pointer.
//   - [Copy] and [Clear]: bulk element operations on raw pointers.
//
// None of these helpers extend the lifetime of what they point to; callers
// must keep the underlying allocation reachable by other means.
package xunsafe

import (
	"sync"

	"github.com/flier/memutil/pkg/xunsafe/layout"
)

// NoCopy is a type that go vet will complain about having been moved.
//
// It does so by holding a zero-length array of [sync.Mutex], whose pointer
// implements [sync.Locker]; vet's copylocks check looks through arrays.
type NoCopy [0]sync.Mutex

// Int is any integer type.
type Int = layout.Int
