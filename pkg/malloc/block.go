package malloc

import (
	"unsafe"

	"github.com/flier/memutil/internal/debug"
	"github.com/flier/memutil/pkg/xunsafe"
)

// Word is the machine word: the size of a header or footer tag, and of each
// free-list link slot.
const Word = int(unsafe.Sizeof(uintptr(0)))

const (
	// DWord is the double word. Every block size and every payload address
	// is a multiple of it.
	DWord = 2 * Word

	// MinBlock is the smallest representable block: a header, two link
	// slots on double-word boundaries, and a footer with padding.
	MinBlock = 6 * Word

	// ChunkSize is the default arena extension step.
	ChunkSize = 1 << 12
)

// allocBit is the in-use flag of a tag word. Sizes are multiples of DWord, so
// the low three bits of a tag are free; bits 1 and 2 stay zero.
const allocBit = 1

// tag packs a block size and its allocated flag into one word. The same
// encoding is written to both ends of a block, so the predecessor's size can
// be read from the word just above a header.
func tag(size int, allocated bool) uintptr {
	debug.Assert(size&(DWord-1) == 0, "block size %d not double-word aligned", size)

	t := uintptr(size)
	if allocated {
		t |= allocBit
	}
	return t
}

func tagSize(t uintptr) int       { return int(t &^ 0x7) }
func tagAllocated(t uintptr) bool { return t&allocBit != 0 }

// hdr returns the header word of the block whose payload starts at bp.
func hdr(bp *byte) *uintptr { return xunsafe.ByteAdd[uintptr](bp, -Word) }

// ftr returns the footer word, the last word of the block.
func ftr(bp *byte) *uintptr { return xunsafe.ByteAdd[uintptr](bp, blockSize(bp)-DWord) }

func blockSize(bp *byte) int       { return tagSize(*hdr(bp)) }
func blockAllocated(bp *byte) bool { return tagAllocated(*hdr(bp)) }

// retag rewrites bp's header and footer. The footer position is derived from
// the new size, so the header is written first.
func retag(bp *byte, size int, allocated bool) {
	t := tag(size, allocated)
	*hdr(bp) = t
	xunsafe.ByteStore(bp, size-DWord, t)
}

// nextBlock returns the payload of bp's successor in address order.
func nextBlock(bp *byte) *byte { return xunsafe.ByteAdd[byte](bp, blockSize(bp)) }

// prevBlock returns the payload of bp's predecessor, whose size is read from
// its footer, the word just above bp's header.
func prevBlock(bp *byte) *byte { return xunsafe.ByteAdd[byte](bp, -prevSize(bp)) }

func prevSize(bp *byte) int       { return tagSize(xunsafe.ByteLoad[uintptr](bp, -DWord)) }
func prevAllocated(bp *byte) bool { return tagAllocated(xunsafe.ByteLoad[uintptr](bp, -DWord)) }

// A free block repurposes its first two double words as list links: the
// predecessor link at payload offset 0 and the successor link at offset
// DWord. Links are stored as integer addresses, not pointers, so the arena
// slab stays free of GC-visible references.

func prevFree(bp *byte) *byte { return xunsafe.ByteLoad[xunsafe.Addr[byte]](bp, 0).AssertValid() }
func nextFree(bp *byte) *byte { return xunsafe.ByteLoad[xunsafe.Addr[byte]](bp, DWord).AssertValid() }

func setPrevFree(bp, p *byte) { xunsafe.ByteStore(bp, 0, xunsafe.AddrOf(p)) }
func setNextFree(bp, p *byte) { xunsafe.ByteStore(bp, DWord, xunsafe.AddrOf(p)) }
