package errors

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindProbes(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError("missing", nil)))
	assert.True(t, IsInvalidInput(NewInvalidInputError("bad", nil)))
	assert.True(t, IsNotEnabled(NewNotEnabledError("off", nil)))
	assert.True(t, IsNotReady(NewNotReadyError("wait", nil)))
	assert.True(t, IsCancelled(NewCancelledError("declined", nil)))
	assert.True(t, IsInternal(NewInternalError("boom", nil)))

	assert.False(t, IsNotFound(NewInternalError("boom", nil)))
	assert.False(t, IsNotFound(pkgerrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestWrapPreservesKind(t *testing.T) {
	err := Wrap(NewNotEnabledError("tool 's3' is not enabled", nil), "call failed")

	assert.True(t, IsNotEnabled(err))
	assert.Equal(t, "call failed: tool 's3' is not enabled", err.Error())
}

func TestWrapPlainErrorBecomesInternal(t *testing.T) {
	err := Wrap(pkgerrors.New("dial refused"), "probe failed")

	assert.True(t, IsInternal(err))
	assert.Contains(t, err.Error(), "dial refused")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestKindSurvivesWrappingChains(t *testing.T) {
	inner := NewCancelledError("declined", nil)
	outer := pkgerrors.Wrap(inner, "dispatch")

	assert.True(t, IsCancelled(outer))
}
