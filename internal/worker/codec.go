package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnknownPayloadType   = errors.New("unknown payload type")
	ErrDuplicatePayloadType = errors.New("payload type already registered")
	ErrCorruptPayload       = errors.New("corrupt payload")
)

// Payload is the data carried by a background item. PayloadType is the wire
// tag stored next to the data and must be callable on the zero value.
type Payload interface {
	PayloadType() string
}

// envelope is the persisted shape of serialized_item_data.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type decodeFunc func(json.RawMessage) (Payload, error)

// Codec encodes payloads into a tagged JSON envelope and decodes them back
// without any static type hint.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]decodeFunc
}

func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]decodeFunc)}
}

// RegisterPayload makes T decodable by c.
func RegisterPayload[T Payload](c *Codec) error {
	var zero T
	tag := zero.PayloadType()
	if tag == "" {
		return fmt.Errorf("register %T: empty payload type", zero)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.decoders[tag]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePayloadType, tag)
	}
	c.decoders[tag] = func(raw json.RawMessage) (Payload, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil
}

// Encode serializes p. Only registered payload types can be encoded so
// that every stored item stays decodable.
func (c *Codec) Encode(p Payload) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil payload", ErrUnknownPayloadType)
	}
	tag := p.PayloadType()

	c.mu.RLock()
	_, ok := c.decoders[tag]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPayloadType, tag)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", tag, err)
	}
	out, err := json.Marshal(envelope{Type: tag, Data: data})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Decode is the inverse of Encode. It never panics on bad input.
func (c *Codec) Decode(s string) (Payload, error) {
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("%w: missing data", ErrCorruptPayload)
	}

	c.mu.RLock()
	dec, ok := c.decoders[env.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayloadType, env.Type)
	}

	p, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPayload, env.Type, err)
	}
	return p, nil
}
