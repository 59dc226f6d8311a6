package eventbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// flakyTransport fails the next failCount publishes, then delegates.
type flakyTransport struct {
	bus       *MemoryBus
	failCount atomic.Int32
}

func (t *flakyTransport) Publish(ctx context.Context, subject string, payload []byte) error {
	if t.failCount.Load() > 0 {
		t.failCount.Add(-1)
		return errors.New("relay unreachable")
	}
	return t.bus.Publish(ctx, subject, payload)
}

type publishRecord struct {
	eventType string
	attempts  int
	failed    bool
}

type telemetryProbe struct {
	mu          sync.Mutex
	publishes   []publishRecord
	transitions []bool
}

func (p *telemetryProbe) ObservePublish(eventType string, attempts int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishes = append(p.publishes, publishRecord{eventType, attempts, err != nil})
}

func (p *telemetryProbe) SetDegraded(degraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, degraded)
}

func fastRetry(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     retries,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		BackoffFactor:  2,
	}
}

func TestPublisher_OutageAndRecovery(t *testing.T) {
	transport := &flakyTransport{bus: NewMemoryBus()}
	transport.failCount.Store(4)

	probe := &telemetryProbe{}
	publisher, err := NewPublisher("node-1", transport, fastRetry(2), probe)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	ctx := context.Background()
	_, err = publisher.Publish(ctx, "alice", TypeActionFinished, map[string]any{"outcome": "failed"})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("Publish() error = %v, want failure after 3 attempts", err)
	}
	if !publisher.Degraded() {
		t.Fatal("publisher not degraded after a failed publish")
	}

	// one failure left; the first retry delivers
	env, err := publisher.Publish(ctx, "alice", TypeActionStarted, map[string]any{"kind": "cook"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if publisher.Degraded() {
		t.Fatal("publisher still degraded after a delivered event")
	}
	if env.Sequence != 2 {
		t.Errorf("sequence = %d, want 2 (failed publish keeps its number)", env.Sequence)
	}

	probe.mu.Lock()
	defer probe.mu.Unlock()
	want := []publishRecord{
		{TypeActionFinished, 3, true},
		{TypeActionStarted, 2, false},
	}
	if len(probe.publishes) != len(want) {
		t.Fatalf("publishes = %+v", probe.publishes)
	}
	for i := range want {
		if probe.publishes[i] != want[i] {
			t.Errorf("publish[%d] = %+v, want %+v", i, probe.publishes[i], want[i])
		}
	}
	if len(probe.transitions) != 2 || !probe.transitions[0] || probe.transitions[1] {
		t.Errorf("transitions = %v, want [true false]", probe.transitions)
	}
}

func TestPublisher_CancelledDuringBackoff(t *testing.T) {
	transport := &flakyTransport{bus: NewMemoryBus()}
	transport.failCount.Store(100)

	retry := fastRetry(5)
	retry.InitialBackoff = time.Second
	retry.MaxBackoff = time.Second
	publisher, err := NewPublisher("node-1", transport, retry, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := publisher.Publish(ctx, "bob", TypePerception, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Publish() waited %v after cancellation", elapsed)
	}
}

func TestPublisher_RejectsMissingFields(t *testing.T) {
	publisher, err := NewPublisher("node-1", NewMemoryBus(), DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := publisher.Publish(ctx, "", TypeDayEnd, nil); err == nil {
		t.Error("expected error for empty actor")
	}
	if _, err := publisher.Publish(ctx, "alice", "", nil); err == nil {
		t.Error("expected error for empty event type")
	}
	if _, err := publisher.Publish(ctx, "alice", TypeDayEnd, func() {}); err == nil {
		t.Error("expected error for unmarshalable payload")
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	bus := NewMemoryBus()
	tests := []struct {
		name      string
		nodeID    string
		transport Transport
		retry     RetryConfig
	}{
		{"empty node", "", bus, DefaultRetryConfig()},
		{"nil transport", "n", nil, DefaultRetryConfig()},
		{"negative retries", "n", bus, RetryConfig{MaxRetries: -1, InitialBackoff: 1, MaxBackoff: 1, BackoffFactor: 1}},
		{"zero backoff", "n", bus, RetryConfig{MaxRetries: 1, BackoffFactor: 2}},
		{"max below initial", "n", bus, RetryConfig{MaxRetries: 1, InitialBackoff: 2, MaxBackoff: 1, BackoffFactor: 2}},
		{"shrinking backoff", "n", bus, RetryConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1, BackoffFactor: 0.5}},
		{"jitter above one", "n", bus, RetryConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1, BackoffFactor: 1, Jitter: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPublisher(tt.nodeID, tt.transport, tt.retry, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
