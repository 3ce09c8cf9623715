package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapError_PreservesSentinelForErrorsIs(t *testing.T) {
	wrapped := WrapError(ErrNotRunning, "create refused")
	assert.True(t, errors.Is(wrapped, ErrNotRunning))
	assert.Equal(t, "create refused: agent not running", wrapped.Error())
}

func TestWrapError_NilErrYieldsPlainMessage(t *testing.T) {
	err := WrapError(nil, "no underlying cause")
	assert.EqualError(t, err, "no underlying cause")
}

func TestErrUnknownCore_DistinctFromErrNotRunning(t *testing.T) {
	assert.False(t, errors.Is(ErrUnknownCore, ErrNotRunning))
}
