package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrSync, nil))

	already := fmt.Errorf("%w: catalog", ErrSync)
	assert.Same(t, already, Wrap(ErrSync, already))

	wrapped := Wrap(ErrSync, fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded))
	assert.True(t, errors.Is(wrapped, ErrSync))
	assert.True(t, errors.Is(wrapped, ErrNetwork))
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitSyncFailure, ExitCode(ErrConfig))
	assert.Equal(t, ExitSyncFailure, ExitCode(Wrap(ErrSync, ErrAuth)))
}
