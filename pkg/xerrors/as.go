// Package xerrors provides small generic helpers over the standard errors
// package.
package xerrors

import "errors"

// AsA returns the first error in err's tree of the target type T.
//
// This is a generic wrapper around [errors.As] for convenience.
func AsA[T error](err error) (_ T, ok bool) {
	var e T

	if ok := errors.As(err, &e); ok {
		return e, true
	}

	var zero T

	return zero, false
}

// HasA reports whether err's tree contains an error of type T.
func HasA[T error](err error) bool {
	_, ok := AsA[T](err)
	return ok
}
