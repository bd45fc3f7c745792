package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constProcessor(itemType string, res Result) Processor {
	return NewTypedProcessor(itemType, func(context.Context, testPayload) (Result, error) {
		return res, nil
	})
}

func TestNewRegistry_DuplicateItemType(t *testing.T) {
	_, err := NewRegistry(constProcessor("a", Success), constProcessor("a", Failure))
	assert.ErrorIs(t, err, ErrDuplicateProcessor)
}

func TestNewRegistry_EmptyItemType(t *testing.T) {
	_, err := NewRegistry(constProcessor("", Success))
	assert.Error(t, err)
}

func TestRegistry_ProcessItem(t *testing.T) {
	r, err := NewRegistry(constProcessor("a", RetryLater), constProcessor("b", Success))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.ItemTypes())

	res, err := r.ProcessItem(context.Background(), "a", testPayload{})
	require.NoError(t, err)
	assert.Equal(t, RetryLater, res)

	res, err = r.ProcessItem(context.Background(), "missing", testPayload{})
	assert.ErrorIs(t, err, ErrUnknownItemType)
	assert.Equal(t, Failure, res)
}

func TestTypedProcessor_PayloadMismatch(t *testing.T) {
	p := constProcessor("a", Success)

	res, err := p.Process(context.Background(), otherPayload{})
	assert.ErrorIs(t, err, ErrPayloadMismatch)
	assert.Equal(t, Failure, res)
}

func TestResult(t *testing.T) {
	assert.True(t, Success.Terminal())
	assert.True(t, Failure.Terminal())
	assert.False(t, RetryLater.Terminal())
	assert.Equal(t, "retry_later", RetryLater.String())
}
