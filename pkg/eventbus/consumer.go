package eventbus

import (
	"fmt"
	"sync"
)

const defaultDedupWindow = 4096

// EnvelopeConsumer decodes envelopes and suppresses duplicate deliveries,
// which happen when an event reaches a node both locally and via a relay.
type EnvelopeConsumer struct {
	window int

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewEnvelopeConsumer creates a consumer that remembers the last window
// event ids. window <= 0 uses a default.
func NewEnvelopeConsumer(window int) *EnvelopeConsumer {
	if window <= 0 {
		window = defaultDedupWindow
	}
	return &EnvelopeConsumer{
		window: window,
		seen:   make(map[string]struct{}, window),
	}
}

// Decode parses raw and reports whether the event was already seen.
func (c *EnvelopeConsumer) Decode(raw []byte) (Envelope, bool, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return Envelope{}, false, err
	}
	if env.SchemaVersion != CurrentSchema {
		return Envelope{}, false, fmt.Errorf("eventbus: unsupported schema version %q", env.SchemaVersion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[env.EventID]; ok {
		return env, true, nil
	}
	c.seen[env.EventID] = struct{}{}
	c.order = append(c.order, env.EventID)
	if len(c.order) > c.window {
		delete(c.seen, c.order[0])
		c.order = c.order[1:]
	}
	return env, false, nil
}
