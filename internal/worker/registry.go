package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicateProcessor = errors.New("duplicate processor for item type")
	ErrUnknownItemType    = errors.New("no processor for item type")
)

// Registry maps item types to processors. It is immutable after construction.
type Registry struct {
	processors map[string]Processor
}

func NewRegistry(processors ...Processor) (*Registry, error) {
	r := &Registry{processors: make(map[string]Processor, len(processors))}
	for _, p := range processors {
		t := p.ItemType()
		if t == "" {
			return nil, fmt.Errorf("processor %T has empty item type", p)
		}
		if _, ok := r.processors[t]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProcessor, t)
		}
		r.processors[t] = p
	}
	return r, nil
}

// ItemTypes returns the registered item types in sorted order.
func (r *Registry) ItemTypes() []string {
	out := make([]string, 0, len(r.processors))
	for t := range r.processors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ProcessItem dispatches payload to the processor owning itemType.
func (r *Registry) ProcessItem(ctx context.Context, itemType string, payload Payload) (Result, error) {
	p, ok := r.processors[itemType]
	if !ok {
		return Failure, fmt.Errorf("%w: %s", ErrUnknownItemType, itemType)
	}
	return p.Process(ctx, payload)
}
