package eventbus

import (
	"context"
	"testing"
)

// subjectMatches treats an invalid pattern as matching nothing.
func subjectMatches(pattern, subject string) bool {
	p, err := parsePattern(pattern)
	return err == nil && p.match(subject)
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"dayloop.v1.actor.alice.day_end", "dayloop.v1.actor.alice.day_end", true},
		{"dayloop.v1.actor.*.day_end", "dayloop.v1.actor.bob.day_end", true},
		{"dayloop.v1.actor.*.day_end", "dayloop.v1.actor.bob.perception", false},
		{"dayloop.v1.actor.>", "dayloop.v1.actor.bob.perception", true},
		{"dayloop.v1.actor.alice.>", "dayloop.v1.actor.alicia.perception", false},
		{"dayloop.v1.actor.alice.>", "dayloop.v1.actor.alice", false},
		{"dayloop.v1.actor.*", "dayloop.v1.actor.alice.day_end", false},
		{"dayloop.v1.actor.alice.day_end", "dayloop.v1.actor.alice", false},
		{">", "anything.at.all", true},
		{".>", "anything.at.all", false},
		{"a.>.b", "a.x.b", false},
		{"a..b", "a..b", false},
	}
	for _, tt := range tests {
		if got := subjectMatches(tt.pattern, tt.subject); got != tt.want {
			t.Errorf("subjectMatches(%q, %q) = %v, want %v", tt.pattern, tt.subject, got, tt.want)
		}
	}
}

func TestActorSubject_Sanitizes(t *testing.T) {
	if got := ActorSubject("Dr. Who", TypeDayEnd); got != "dayloop.v1.actor.Dr__Who.day_end" {
		t.Errorf("unexpected subject %q", got)
	}
	if got := ActorSubject("", ""); got != "dayloop.v1.actor.unknown.unknown" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestMemoryBus_DropsForSlowSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(AllActorsSubject(), 1)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := bus.Publish(ctx, ActorSubject("alice", TypePerception), []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	if sub.Dropped() != 2 {
		t.Errorf("expected 2 dropped messages, got %d", sub.Dropped())
	}
	if bus.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", bus.Subscribers())
	}

	_ = sub.Close()
	_ = sub.Close()
	if bus.Subscribers() != 0 {
		t.Errorf("expected no subscribers after Close, got %d", bus.Subscribers())
	}
	if _, ok := <-sub.C(); !ok {
		t.Fatal("buffered message should still be readable")
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed")
	}
}

func TestMemoryBus_Errors(t *testing.T) {
	bus := NewMemoryBus()
	for _, pattern := range []string{"", "a..b", "a.>.b", "."} {
		if _, err := bus.Subscribe(pattern, 1); err == nil {
			t.Errorf("Subscribe(%q) succeeded", pattern)
		}
	}
	if err := bus.Publish(context.Background(), "", nil); err == nil {
		t.Error("expected error for empty subject")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.Publish(ctx, "a.b", nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestMemoryBus_RoutesByPattern(t *testing.T) {
	bus := NewMemoryBus()
	alice, _ := bus.Subscribe(ActorWildcardSubject("alice"), 4)
	dayEnds, _ := bus.Subscribe(SubjectPrefix+".*."+TypeDayEnd, 4)
	defer alice.Close()
	defer dayEnds.Close()

	ctx := context.Background()
	for _, subject := range []string{
		ActorSubject("alice", TypePerception),
		ActorSubject("bob", TypeDayEnd),
		ActorSubject("alice", TypeDayEnd),
	} {
		if err := bus.Publish(ctx, subject, []byte(subject)); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(alice.C()); got != 2 {
		t.Errorf("alice got %d messages, want 2", got)
	}
	if got := len(dayEnds.C()); got != 2 {
		t.Errorf("day-end subscriber got %d messages, want 2", got)
	}
	msg := <-dayEnds.C()
	if msg.Subject != ActorSubject("bob", TypeDayEnd) || string(msg.Payload) != msg.Subject {
		t.Errorf("first day-end message = %+v", msg)
	}
}

func TestEnvelopeConsumer_Window(t *testing.T) {
	c := NewEnvelopeConsumer(2)
	raws := make([][]byte, 3)
	for i := range raws {
		env, err := NewEnvelope("n", "alice", TypeDayEnd, int64(i+1), nil)
		if err != nil {
			t.Fatal(err)
		}
		raws[i] = mustJSON(t, env)
		if _, dup, err := c.Decode(raws[i]); err != nil || dup {
			t.Fatalf("Decode(%d) = dup %v, err %v", i, dup, err)
		}
	}
	// the first id fell out of the window
	if _, dup, _ := c.Decode(raws[0]); dup {
		t.Error("expected the oldest id to be forgotten")
	}
	if _, dup, _ := c.Decode(raws[2]); !dup {
		t.Error("expected the newest id to be remembered")
	}

	if _, _, err := c.Decode([]byte(`{"event_id":"x","event_type":"t","schema_version":"v9"}`)); err == nil {
		t.Error("expected unsupported schema error")
	}
	if _, _, err := c.Decode([]byte(`nope`)); err == nil {
		t.Error("expected decode error")
	}
}
