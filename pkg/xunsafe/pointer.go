package xunsafe

import "unsafe"

// Cast casts one pointer type to another.
func Cast[To, From any](p *From) *To {
	return (*To)(unsafe.Pointer(p))
}

// Copy copies n elements from one pointer to the other.
func Copy[P ~*E, E any, I Int](dst, src P, n I) {
	d := (*E)(dst)
	s := (*E)(src)
	copy(unsafe.Slice(d, n), unsafe.Slice(s, n))
}

// Clear zeros n elements at p.
func Clear[P ~*E, E any, I Int](p P, n I) {
	e := (*E)(p)
	clear(unsafe.Slice(e, n))
}
