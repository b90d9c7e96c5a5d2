package malloc_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/flier/memutil/pkg/malloc"
	"github.com/flier/memutil/pkg/malloc/sbrk"
	"github.com/flier/memutil/pkg/xerrors"
	"github.com/flier/memutil/pkg/xunsafe"
)

// The checker is exercised by corrupting blocks through their raw words, the
// same way a buggy caller scribbling out of bounds would.

func TestCheckDetectsCorruption(t *testing.T) {
	Convey("Given a heap with a few allocations", t, func() {
		mem := sbrk.New(1 << 16)
		h, err := malloc.New(mem)
		So(err, ShouldBeNil)

		a := h.Alloc(64)
		b := h.Alloc(64)
		c := h.Alloc(64)
		So(h.Check(), ShouldBeNil)

		size := uintptr(64 + malloc.DWord) // each block: payload round-up plus tags

		Convey("When a header loses its allocated bit", func() {
			xunsafe.ByteStore(b, -malloc.Word, size)

			err := h.Check()
			So(err, ShouldNotBeNil)
			So(xerrors.HasA[*malloc.TagMismatchError](err), ShouldBeTrue)
			So(xerrors.HasA[*malloc.CountMismatchError](err), ShouldBeTrue)
		})

		Convey("When both tags of an allocated block are cleared", func() {
			h.Free(b)

			xunsafe.ByteStore(a, -malloc.Word, size)
			xunsafe.ByteStore(a, int(size)-malloc.DWord, size)

			err := h.Check()
			So(err, ShouldNotBeNil)
			So(xerrors.HasA[*malloc.AdjacentFreeError](err), ShouldBeTrue)
			So(xerrors.HasA[*malloc.CountMismatchError](err), ShouldBeTrue)
		})

		Convey("When a free block's successor link leaves the arena", func() {
			h.Free(b)

			xunsafe.ByteStore(b, malloc.DWord, uintptr(0xdead0000))

			err := h.Check()
			So(err, ShouldNotBeNil)
			So(xerrors.HasA[*malloc.BadLinkError](err), ShouldBeTrue)
		})

		Convey("When a header size drifts off the double-word grid", func() {
			xunsafe.ByteStore(b, -malloc.Word, (size+8)|1)

			err := h.Check()
			So(err, ShouldNotBeNil)
			So(xerrors.HasA[*malloc.MisalignedError](err), ShouldBeTrue)
		})

		Convey("When the epilogue is overwritten", func() {
			epi := mem.Hi().Add(1 - malloc.Word)
			*xunsafe.Cast[uintptr](epi.AssertValid()) = 0

			err := h.Check()
			So(err, ShouldNotBeNil)

			se, ok := xerrors.AsA[*malloc.BadSentinelError](err)
			So(ok, ShouldBeTrue)
			So(se.Which, ShouldEqual, "epilogue")
		})

		Convey("When the prologue is overwritten", func() {
			pro := mem.Lo().Add(malloc.Word)
			*xunsafe.Cast[uintptr](pro.AssertValid()) = 0

			err := h.Check()
			So(err, ShouldNotBeNil)

			se, ok := xerrors.AsA[*malloc.BadSentinelError](err)
			So(ok, ShouldBeTrue)
			So(se.Which, ShouldEqual, "prologue")
		})

		_ = c
	})
}

func TestFingerprintDistinguishesFreeSets(t *testing.T) {
	Convey("Given two different holes", t, func() {
		h, err := malloc.New(sbrk.New(1 << 16))
		So(err, ShouldBeNil)

		a := h.Alloc(64)
		b := h.Alloc(64)
		_ = h.Alloc(64)

		Convey("Then their fingerprints differ", func() {
			h.Free(a)
			fpA := h.Fingerprint()

			q := h.Alloc(64) // refills a's hole
			So(q, ShouldEqual, a)

			h.Free(b)
			fpB := h.Fingerprint()

			So(fpA, ShouldNotEqual, fpB)
		})
	})
}
