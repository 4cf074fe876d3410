package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	t.Parallel()
	err := NewError(ErrValidation, "bad input")
	assert.Equal(t, "[VALIDATION] bad input", err.Error())

	err = NewErrorf(ErrAgentInvocation, "agent %s failed", "coder").WithStage("build")
	assert.Equal(t, "[AGENT_INVOCATION] stage build: agent coder failed", err.Error())
}

func TestError_CauseChain(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	err := NewError(ErrAgentInvocation, "agent call").WithCause(cause)

	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)

	var structured *Error
	require.ErrorAs(t, error(err), &structured)
	assert.Equal(t, ErrAgentInvocation, structured.Code)
}

func TestError_Retryable(t *testing.T) {
	t.Parallel()
	err := NewError(ErrAgentInvocation, "timeout").WithRetryable(true)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(NewError(ErrValidation, "nope")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ErrCycleDetected, GetErrorCode(NewError(ErrCycleDetected, "loop")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))

	assert.True(t, IsCode(NewError(ErrWorkflowDeadlock, "stuck"), ErrWorkflowDeadlock))
	assert.False(t, IsCode(errors.New("plain"), ErrWorkflowDeadlock))
}
