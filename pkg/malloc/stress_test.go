package malloc_test

import (
	"testing"
	"unsafe"

	"github.com/bytedance/gopkg/lang/fastrand"

	"github.com/flier/memutil/pkg/malloc"
	"github.com/flier/memutil/pkg/malloc/sbrk"
	"github.com/flier/memutil/pkg/xunsafe"
)

type slot struct {
	p   *byte
	n   int
	pat byte
}

func fill(s *slot) {
	for i := range unsafe.Slice(s.p, s.n) {
		unsafe.Slice(s.p, s.n)[i] = s.pat
	}
}

func verify(t *testing.T, s *slot) {
	t.Helper()
	for i, v := range unsafe.Slice(s.p, s.n) {
		if v != s.pat {
			t.Fatalf("slot %p byte %d: got %#x, want %#x", s.p, i, v, s.pat)
		}
	}
}

// TestStress interleaves random allocs, frees and reallocs, verifying the
// structural invariants and payload integrity as it goes.
func TestStress(t *testing.T) {
	mem := sbrk.New(4 << 20)
	h, err := malloc.New(mem)
	if err != nil {
		t.Fatal(err)
	}

	var live []slot

	const ops = 4000
	for i := 0; i < ops; i++ {
		switch r := fastrand.Uint32n(100); {
		case r < 45 || len(live) == 0:
			n := 1 + int(fastrand.Uint32n(256))
			p := h.Alloc(n)
			if p == nil {
				t.Fatalf("op %d: Alloc(%d) failed with memory to spare", i, n)
			}
			if !xunsafe.AddrOf(p).Aligned(malloc.DWord) {
				t.Fatalf("op %d: Alloc(%d) returned misaligned %p", i, n, p)
			}

			s := slot{p: p, n: n, pat: byte(i)}
			fill(&s)
			live = append(live, s)

		case r < 75:
			k := int(fastrand.Uint32n(uint32(len(live))))
			verify(t, &live[k])
			h.Free(live[k].p)
			live = append(live[:k], live[k+1:]...)

		default:
			k := int(fastrand.Uint32n(uint32(len(live))))
			s := &live[k]
			verify(t, s)

			n := 1 + int(fastrand.Uint32n(512))
			p := h.Realloc(s.p, n)
			if p == nil {
				t.Fatalf("op %d: Realloc(%p, %d) failed", i, s.p, n)
			}

			// The surviving prefix must be intact before the slot is
			// repainted.
			keep := min(s.n, n)
			for j, v := range unsafe.Slice(p, keep) {
				if v != s.pat {
					t.Fatalf("op %d: realloc lost byte %d: got %#x, want %#x", i, j, v, s.pat)
				}
			}

			s.p, s.n, s.pat = p, n, byte(i)
			fill(s)
		}

		if err := h.Check(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
	}

	if err := h.Check(); err != nil {
		t.Fatal(err)
	}

	for i := range live {
		verify(t, &live[i])
		h.Free(live[i].p)
	}

	if err := h.Check(); err != nil {
		t.Fatal(err)
	}

	// With everything freed, coalescing must leave a single block covering
	// the whole arena past the prologue.
	if got, want := h.FreeBlocks(), 1; got != want {
		t.Errorf("free blocks after teardown: got %d, want %d", got, want)
	}
	if got, want := h.FreeBytes(), mem.Size()-8*malloc.Word; got != want {
		t.Errorf("free bytes after teardown: got %d, want %d", got, want)
	}
}
