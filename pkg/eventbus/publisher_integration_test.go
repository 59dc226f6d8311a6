package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsume_PerActorOrder(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(ActorWildcardSubject("alice"), 16)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	ctx := context.Background()
	for step := 1; step <= 3; step++ {
		if _, err := publisher.Publish(ctx, "alice", TypeActionQueued, map[string]int{"step": step}); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if _, err := publisher.Publish(ctx, "bob", TypeActionQueued, nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	consumer := NewEnvelopeConsumer(0)
	var got []Envelope
	var firstRaw []byte
	for len(got) < 3 {
		select {
		case msg := <-sub.C():
			if firstRaw == nil {
				firstRaw = append([]byte(nil), msg.Payload...)
			}
			env, duplicate, err := consumer.Decode(msg.Payload)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if duplicate {
				t.Fatal("first delivery flagged as duplicate")
			}
			got = append(got, env)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	for i, env := range got {
		if env.Actor != "alice" || env.NodeID != "node-1" || env.SchemaVersion != CurrentSchema {
			t.Fatalf("envelope %d = %+v", i, env)
		}
		if env.Sequence != int64(i+1) {
			t.Errorf("envelope %d sequence = %d", i, env.Sequence)
		}
		var payload struct{ Step int }
		if err := env.DecodePayload(&payload); err != nil || payload.Step != i+1 {
			t.Errorf("envelope %d payload = %+v, err %v", i, payload, err)
		}
		if i > 0 && env.EventID <= got[i-1].EventID {
			t.Errorf("event ids out of order: %s after %s", env.EventID, got[i-1].EventID)
		}
	}

	select {
	case msg := <-sub.C():
		t.Fatalf("bob's event reached alice's subscription: %s", msg.Subject)
	default:
	}

	if _, duplicate, err := consumer.Decode(firstRaw); err != nil || !duplicate {
		t.Errorf("redelivery: duplicate = %v, err = %v", duplicate, err)
	}
}

func TestNewEnvelope_Validation(t *testing.T) {
	tests := []struct {
		name                   string
		node, actor, eventType string
		seq                    int64
	}{
		{"no node", "", "alice", TypeDayEnd, 1},
		{"no actor", "n", "", TypeDayEnd, 1},
		{"no type", "n", "alice", "", 1},
		{"zero sequence", "n", "alice", TypeDayEnd, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEnvelope(tt.node, tt.actor, tt.eventType, tt.seq, nil); err == nil {
				t.Error("expected error")
			}
		})
	}

	env, err := NewEnvelope("n", "alice", TypeDayEnd, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(env.Payload) != "null" {
		t.Errorf("payload = %s", env.Payload)
	}
	var v map[string]any
	if err := (Envelope{EventID: "x"}).DecodePayload(&v); err == nil {
		t.Error("expected error for an empty payload")
	}
}
