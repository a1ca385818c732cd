package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

type DecodeFunc func(data json.RawMessage) (any, error)

type versionedType struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry holds payload decoders keyed by event type and envelope
// version. Consumers register the versions they understand at startup.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[versionedType]DecodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[versionedType]DecodeFunc)}
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, fn DecodeFunc) {
	r.mu.Lock()
	r.decoders[versionedType{eventType, version}] = fn
	r.mu.Unlock()
}

// RegisterJSON registers a decoder that unmarshals into a fresh *T.
func RegisterJSON[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int) {
	r.Register(eventType, version, func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	r.mu.RLock()
	fn, ok := r.decoders[versionedType{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s v%d", eventType, version)
	}
	return fn(data)
}
