package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/numberpool/pkg/enums"
)

// CurrentVersion is the envelope version written by Emit. Readers treat a
// missing version as 1.
const CurrentVersion = 1

var ErrEmptyPayload = errors.New("envelope carries no data")

// ActorRef identifies the shopper whose action produced the event.
type ActorRef struct {
	ActorID string          `json:"actorId"`
	Kind    enums.ActorKind `json:"kind,omitempty"`
}

// PayloadEnvelope wraps every event body stored in outbox_events and sent on
// the wire.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses raw and rejects envelopes without a data body.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, ErrEmptyPayload
	}
	if env.Version == 0 {
		env.Version = 1
	}
	return env, nil
}
