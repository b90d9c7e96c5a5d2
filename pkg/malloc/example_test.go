package malloc_test

import (
	"fmt"

	"github.com/flier/memutil/pkg/malloc"
	"github.com/flier/memutil/pkg/malloc/sbrk"
)

func Example() {
	h, err := malloc.New(sbrk.Default())
	if err != nil {
		panic(err)
	}

	p := h.Alloc(64)
	p = h.Realloc(p, 128) // grows in place: the next block is free

	fmt.Println(p != nil, h.Check() == nil)

	h.Free(p)
	fmt.Println(h.FreeBlocks(), h.FreeBytes())

	// Output:
	// true true
	// 1 4096
}
