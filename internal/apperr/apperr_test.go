package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverableFlags(t *testing.T) {
	assert.True(t, KindSyntaxError.Recoverable())
	assert.True(t, KindUnknownTable.Recoverable())
	assert.True(t, KindUnknownColumn.Recoverable())
	assert.True(t, KindTypeMismatch.Recoverable())
	assert.True(t, KindGenerationFailed.Recoverable())

	assert.False(t, KindValidationFailFast.Recoverable())
	assert.False(t, KindRetrievalUnavailable.Recoverable())
	assert.False(t, KindNoRelevantSchema.Recoverable())
	assert.False(t, KindPermissionDenied.Recoverable())
	assert.False(t, KindConnectionError.Recoverable())
	assert.False(t, KindResourceExhausted.Recoverable())
	assert.False(t, KindServerInternal.Recoverable())
	assert.False(t, KindDeadlineExceeded.Recoverable())
	assert.False(t, KindExecutionError.Recoverable())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindConnectionError, "could not reach database", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsUnwrapsChain(t *testing.T) {
	base := New(KindUnknownColumn, "column foo does not exist")
	wrapped := fmt.Errorf("evaluating candidate: %w", base)

	found, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindUnknownColumn, found.Kind)
}

func TestAsReturnsFalseForPlainError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOfDefaultsToServerInternal(t *testing.T) {
	assert.Equal(t, KindServerInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindSyntaxError, KindOf(New(KindSyntaxError, "bad")))
}
