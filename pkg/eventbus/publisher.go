package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goclaw/dayloop/pkg/logger"
)

// Transport publishes bytes to a subject.
type Transport interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Telemetry observes publishing. ObservePublish is called once per event
// with the number of transport attempts it took; SetDegraded only on
// transitions.
type Telemetry interface {
	ObservePublish(eventType string, attempts int, err error)
	SetDegraded(degraded bool)
}

type nopTelemetry struct{}

func (nopTelemetry) ObservePublish(string, int, error) {}
func (nopTelemetry) SetDegraded(bool)                  {}

// RetryConfig is the backoff policy between transport attempts.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// Jitter randomizes each wait by up to this fraction, 0 to 1.
	Jitter float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2,
		Jitter:         0.2,
	}
}

func (c RetryConfig) validate() error {
	switch {
	case c.MaxRetries < 0:
		return errors.New("eventbus: max retries cannot be negative")
	case c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff:
		return errors.New("eventbus: backoff bounds are invalid")
	case c.BackoffFactor < 1:
		return errors.New("eventbus: backoff factor must be at least 1")
	case c.Jitter < 0 || c.Jitter > 1:
		return errors.New("eventbus: jitter must be within [0, 1]")
	}
	return nil
}

func (c RetryConfig) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialBackoff
	b.MaxInterval = c.MaxBackoff
	b.Multiplier = c.BackoffFactor
	b.RandomizationFactor = c.Jitter
	return b
}

// Publisher wraps actor events in envelopes and sends them with retries.
// Sequence numbers are per actor and start at 1. The publisher is
// degraded from the first failed attempt until the next delivered event.
type Publisher struct {
	transport Transport
	nodeID    string
	retry     RetryConfig
	telemetry Telemetry

	mu        sync.Mutex
	sequences map[string]int64
	degraded  bool
}

// NewPublisher creates an actor event publisher. telemetry may be nil.
func NewPublisher(nodeID string, transport Transport, retry RetryConfig, telemetry Telemetry) (*Publisher, error) {
	if nodeID == "" {
		return nil, errors.New("eventbus: node id cannot be empty")
	}
	if transport == nil {
		return nil, errors.New("eventbus: transport cannot be nil")
	}
	if err := retry.validate(); err != nil {
		return nil, err
	}
	if telemetry == nil {
		telemetry = nopTelemetry{}
	}
	return &Publisher{
		transport: transport,
		nodeID:    nodeID,
		retry:     retry,
		telemetry: telemetry,
		sequences: make(map[string]int64),
	}, nil
}

// NodeID identifies this publisher in envelopes.
func (p *Publisher) NodeID() string { return p.nodeID }

// Publish sends one actor event and returns its envelope. The sequence
// number is consumed even when delivery fails, so consumers can detect
// the gap.
func (p *Publisher) Publish(ctx context.Context, actor, eventType string, payload any) (Envelope, error) {
	if err := ctx.Err(); err != nil {
		return Envelope{}, err
	}
	if actor == "" || eventType == "" {
		return Envelope{}, errors.New("eventbus: actor and event type are required")
	}

	env, err := NewEnvelope(p.nodeID, actor, eventType, p.nextSequence(actor), payload)
	if err != nil {
		return Envelope{}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, fmt.Errorf("eventbus: marshal envelope: %w", err)
	}
	subject := ActorSubject(actor, eventType)

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, p.transport.Publish(ctx, subject, body)
	},
		backoff.WithBackOff(p.retry.backOff()),
		backoff.WithMaxTries(uint(p.retry.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.setDegraded(true, err)
			logger.FromContext(ctx).DebugContext(ctx, "retrying event publish",
				"subject", subject, "attempt", attempts, "wait", wait, "error", err)
		}),
	)
	p.telemetry.ObservePublish(eventType, attempts, err)
	if err != nil {
		p.setDegraded(true, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Envelope{}, ctxErr
		}
		return Envelope{}, fmt.Errorf("eventbus: publish %s after %d attempts: %w", subject, attempts, err)
	}
	p.setDegraded(false, nil)
	return env, nil
}

// Degraded reports whether publishing is currently failing.
func (p *Publisher) Degraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.degraded
}

func (p *Publisher) nextSequence(actor string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sequences[actor]++
	return p.sequences[actor]
}

func (p *Publisher) setDegraded(degraded bool, cause error) {
	p.mu.Lock()
	changed := p.degraded != degraded
	p.degraded = degraded
	p.mu.Unlock()
	if !changed {
		return
	}

	p.telemetry.SetDegraded(degraded)
	if degraded {
		logger.Warn("event publishing degraded", "node", p.nodeID, "error", cause)
	} else {
		logger.Info("event publishing recovered", "node", p.nodeID)
	}
}

// Fanout publishes to every transport and joins their errors.
type Fanout []Transport

// Publish implements Transport.
func (f Fanout) Publish(ctx context.Context, subject string, payload []byte) error {
	var errs []error
	for _, t := range f {
		if err := t.Publish(ctx, subject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
