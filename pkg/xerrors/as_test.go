package xerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flier/memutil/pkg/xerrors"
)

type timeoutError struct{ op string }

func (e *timeoutError) Error() string { return e.op + ": timed out" }

func TestAsA(t *testing.T) {
	err := fmt.Errorf("request failed: %w", &timeoutError{op: "dial"})

	te, ok := xerrors.AsA[*timeoutError](err)
	assert.True(t, ok)
	assert.Equal(t, "dial", te.op)

	_, ok = xerrors.AsA[*timeoutError](errors.New("no match"))
	assert.False(t, ok)
}

func TestHasA(t *testing.T) {
	joined := errors.Join(errors.New("first"), &timeoutError{op: "read"})

	assert.True(t, xerrors.HasA[*timeoutError](joined))
	assert.False(t, xerrors.HasA[*timeoutError](errors.New("plain")))
}
