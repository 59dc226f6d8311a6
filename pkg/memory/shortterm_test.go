package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/storage"
	memstore "github.com/goclaw/dayloop/pkg/storage/memory"
)

// failingStore rejects writes once broken is set.
type failingStore struct {
	storage.DocumentStore
	broken bool
}

func (s *failingStore) Put(ctx context.Context, key storage.Key, data []byte) error {
	if s.broken {
		return &storage.StorageUnavailableError{Cause: errors.New("disk full")}
	}
	return s.DocumentStore.Put(ctx, key, data)
}

func TestShortTermLog_AppendPersists(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStorage()
	defer store.Close()
	clock := func() time.Time { return at(9, 30) }

	log := NewShortTermLog("mina", store, clock)
	e, err := log.Append(ctx, KindPerception, "saw jun at the door", map[string]string{"who": "jun"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if e.Seq != 1 || !e.Timestamp.Equal(at(9, 30)) {
		t.Errorf("unexpected entry %+v", e)
	}

	var doc ShortTermDocument
	if err := storage.GetJSON(ctx, store, storage.ShortTermKey("mina"), &doc); err != nil {
		t.Fatalf("document not written: %v", err)
	}
	if len(doc.Entries) != 1 || doc.Entries[0].Content != "saw jun at the door" {
		t.Errorf("unexpected document %+v", doc)
	}
	var details map[string]string
	if err := json.Unmarshal(doc.Entries[0].Details, &details); err != nil || details["who"] != "jun" {
		t.Errorf("unexpected details %s", doc.Entries[0].Details)
	}

	reloaded := NewShortTermLog("mina", store, clock)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	next, _ := reloaded.Append(ctx, KindDecision, "let him in", nil)
	if next.Seq != 2 {
		t.Errorf("sequence should continue after reload, got %d", next.Seq)
	}
}

func TestShortTermLog_LoadMissing(t *testing.T) {
	log := NewShortTermLog("nobody", memstore.NewMemoryStorage(), nil)
	if err := log.Load(context.Background()); err != nil {
		t.Fatalf("Load of a missing document should succeed: %v", err)
	}
	if log.Len() != 0 {
		t.Errorf("expected empty log, got %d", log.Len())
	}
}

func TestShortTermLog_FailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{DocumentStore: memstore.NewMemoryStorage()}
	log := NewShortTermLog("mina", store, nil)
	_, _ = log.Append(ctx, KindPlan, "planned the day", nil)

	store.broken = true
	if _, err := log.Append(ctx, KindPlan, "lost", nil); err == nil {
		t.Fatal("expected error")
	}
	if err := log.Clear(ctx); err == nil {
		t.Fatal("expected error")
	}
	if log.Len() != 1 {
		t.Errorf("failed writes must not change the log, got %d entries", log.Len())
	}

	store.broken = false
	e, _ := log.Append(ctx, KindPlan, "retry", nil)
	if e.Seq != 2 {
		t.Errorf("failed append must not consume a sequence number, got %d", e.Seq)
	}
}

func TestShortTermLog_ClearPersistsEmptyList(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStorage()
	log := NewShortTermLog("mina", store, nil)
	_, _ = log.Append(ctx, KindPlan, "x", nil)

	if err := log.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	data, err := store.Get(ctx, storage.ShortTermKey("mina"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["entries"]) != "[]" {
		t.Errorf("expected an empty list, got %s", raw["entries"])
	}
}

func TestShortTermLog_AllReturnsCopies(t *testing.T) {
	ctx := context.Background()
	log := NewShortTermLog("mina", memstore.NewMemoryStorage(), nil)
	_, _ = log.AppendEntry(ctx, ShortTermEntry{Kind: KindPerception, Content: "rain", Emotions: []string{"calm"}})

	all := log.All(ctx)
	all[0].Emotions[0] = "angry"
	all[0].Content = "sun"

	again := log.All(ctx)
	if again[0].Content != "rain" || again[0].Emotions[0] != "calm" {
		t.Errorf("log was mutated through All: %+v", again[0])
	}
}
