package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

type publishRecorder struct {
	goredis.Cmdable
	channel string
	payload any
	err     error
}

func (r *publishRecorder) Publish(_ context.Context, channel string, message interface{}) *goredis.IntCmd {
	r.channel = channel
	r.payload = message
	return goredis.NewIntResult(1, r.err)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRedisTransport_Publish(t *testing.T) {
	rec := &publishRecorder{}
	tr := NewRedisTransport(rec)
	subject := ActorSubject("alice", TypePlanRevised)

	if err := tr.Publish(context.Background(), subject, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rec.channel != subject {
		t.Errorf("expected channel %q, got %q", subject, rec.channel)
	}
	if b, ok := rec.payload.([]byte); !ok || string(b) != `{"a":1}` {
		t.Errorf("unexpected payload %#v", rec.payload)
	}

	rec.err = errors.New("connection refused")
	if err := tr.Publish(context.Background(), subject, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestFanout_PublishesEverywhere(t *testing.T) {
	bus := NewMemoryBus()
	sub, _ := bus.Subscribe(AllActorsSubject(), 4)
	defer sub.Close()
	rec := &publishRecorder{err: errors.New("down")}

	f := Fanout{NewRedisTransport(rec), bus}
	err := f.Publish(context.Background(), ActorSubject("alice", TypeDayEnd), []byte("{}"))
	if err == nil {
		t.Fatal("expected the redis error to surface")
	}
	select {
	case <-sub.C():
	default:
		t.Fatal("local bus should still receive the event")
	}
}
