package worker

import (
	"context"
	"errors"
	"fmt"
)

var ErrPayloadMismatch = errors.New("payload does not match processor")

// Result is the outcome of processing one item.
type Result int

const (
	// Success removes the item.
	Success Result = iota
	// Failure removes the item without further attempts.
	Failure
	// RetryLater keeps the item for the next poll cycle.
	RetryLater
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case RetryLater:
		return "retry_later"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Terminal reports whether the item must be removed after this result.
func (r Result) Terminal() bool {
	return r == Success || r == Failure
}

// Processor executes items of a single item type.
type Processor interface {
	ItemType() string
	Process(ctx context.Context, payload Payload) (Result, error)
}

type typedProcessor[T Payload] struct {
	itemType string
	fn       func(context.Context, T) (Result, error)
}

// NewTypedProcessor adapts a function over a concrete payload type to a Processor.
func NewTypedProcessor[T Payload](itemType string, fn func(context.Context, T) (Result, error)) Processor {
	return &typedProcessor[T]{itemType: itemType, fn: fn}
}

func (p *typedProcessor[T]) ItemType() string { return p.itemType }

func (p *typedProcessor[T]) Process(ctx context.Context, payload Payload) (Result, error) {
	v, ok := payload.(T)
	if !ok {
		var want T
		return Failure, fmt.Errorf("%w: %s wants %T, got %T", ErrPayloadMismatch, p.itemType, want, payload)
	}
	return p.fn(ctx, v)
}
