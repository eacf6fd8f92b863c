package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("join %s: %w", "ev-1", ErrEventFull)
	assert.True(t, errors.Is(err, ErrEventFull))
	assert.False(t, errors.Is(err, ErrAlreadyReserved))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "event_full", CodeOf(err))
}

func TestWithKeepsSentinelIdentity(t *testing.T) {
	cause := errors.New("disk full")
	err := With(ErrAssetUpload, cause)

	assert.True(t, errors.Is(err, ErrAssetUpload))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "image upload failed: disk full", err.Error())
	assert.Equal(t, "image upload failed", MessageOf(err))
	assert.Nil(t, ErrAssetUpload.Err, "sentinel must not be mutated")
}

func TestTransient(t *testing.T) {
	assert.NoError(t, Transient(nil))

	raw := errors.New("connection reset")
	err := Transient(raw)
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, "transient", CodeOf(err))
	assert.ErrorIs(t, err, raw)

	assert.Same(t, ErrEventNotFound, Transient(ErrEventNotFound))
}

func TestUnclassifiedDefaults(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "internal_error", CodeOf(err))
	assert.Equal(t, "internal error", MessageOf(err))
}

func TestInvalid(t *testing.T) {
	err := Invalid("capacity %d is too small", 0)
	assert.Equal(t, KindInvalid, err.Kind)
	assert.Equal(t, "invalid_input", err.Code)
	assert.Equal(t, "capacity 0 is too small", err.Error())
	assert.Equal(t, "invalid_state", KindInvalidState.String())
}
