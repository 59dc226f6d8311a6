package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// DocumentStoreTestSuite runs the same behavioral checks against any
// DocumentStore implementation.
type DocumentStoreTestSuite struct {
	NewStore func(t *testing.T) DocumentStore
}

// RunAllTests runs all storage tests against the provided implementation.
func (s *DocumentStoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("PutGet", s.TestPutGet)
	t.Run("Overwrite", s.TestOverwrite)
	t.Run("NotFound", s.TestNotFound)
	t.Run("Delete", s.TestDelete)
	t.Run("ListScopedAndSorted", s.TestListScopedAndSorted)
	t.Run("ReturnedBytesAreCopies", s.TestReturnedBytesAreCopies)
	t.Run("InvalidKey", s.TestInvalidKey)
	t.Run("JSONHelpers", s.TestJSONHelpers)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
}

// TestPutGet stores and reads back a document.
func (s *DocumentStoreTestSuite) TestPutGet(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	key := LongTermKey("mina")
	if err := store.Put(ctx, key, []byte(`{"entries":[]}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"entries":[]}` {
		t.Errorf("unexpected document %s", got)
	}
}

// TestOverwrite replaces an existing document.
func (s *DocumentStoreTestSuite) TestOverwrite(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	key := ShortTermKey("mina")
	_ = store.Put(ctx, key, []byte("v1"))
	if err := store.Put(ctx, key, []byte("v2")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("expected v2, got %s", got)
	}

	names, err := store.List(ctx, "mina", KindShortTerm)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 {
		t.Errorf("overwrite should not duplicate names, got %v", names)
	}
}

// TestNotFound checks the typed error for missing documents.
func (s *DocumentStoreTestSuite) TestNotFound(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()

	_, err := store.Get(context.Background(), LongTermKey("nobody"))
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

// TestDelete removes documents and reports missing ones.
func (s *DocumentStoreTestSuite) TestDelete(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	key := BackupKey("mina", "b1")
	_ = store.Put(ctx, key, []byte("snapshot"))

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, key); !IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); !IsNotFound(err) {
		t.Errorf("expected NotFoundError deleting twice, got %v", err)
	}

	names, _ := store.List(ctx, "mina", KindBackup)
	if len(names) != 0 {
		t.Errorf("expected no backups after delete, got %v", names)
	}
}

// TestListScopedAndSorted lists only one actor's documents of one kind.
func (s *DocumentStoreTestSuite) TestListScopedAndSorted(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	day := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	for _, d := range []time.Time{day.AddDate(0, 0, 1), day, day.AddDate(0, 0, -1)} {
		if err := store.Put(ctx, PlanKey("mina", d), []byte("{}")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	_ = store.Put(ctx, PlanKey("jun", day), []byte("{}"))
	_ = store.Put(ctx, LongTermKey("mina"), []byte("{}"))

	names, err := store.List(ctx, "mina", KindPlan)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"20250301", "20250302", "20250303"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("List = %v, want %v", names, want)
	}

	empty, err := store.List(ctx, "nobody", KindPlan)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}
}

// TestReturnedBytesAreCopies ensures callers cannot mutate stored state.
func (s *DocumentStoreTestSuite) TestReturnedBytesAreCopies(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	key := LongTermKey("mina")
	data := []byte("original")
	_ = store.Put(ctx, key, data)
	data[0] = 'X'

	got, _ := store.Get(ctx, key)
	got[1] = 'Y'

	again, _ := store.Get(ctx, key)
	if string(again) != "original" {
		t.Errorf("stored document was mutated: %s", again)
	}
}

// TestInvalidKey rejects keys with missing or separator-bearing segments.
func (s *DocumentStoreTestSuite) TestInvalidKey(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	for _, key := range []Key{
		{Actor: "", Kind: KindLongTerm, Name: "current"},
		{Actor: "a/b", Kind: KindLongTerm, Name: "current"},
		{Actor: "mina", Kind: KindBackup, Name: ""},
	} {
		if err := store.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("expected error for key %q", key.String())
		}
	}
}

// TestJSONHelpers round-trips a value through PutJSON and GetJSON.
func (s *DocumentStoreTestSuite) TestJSONHelpers(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	type doc struct {
		Entries []string `json:"entries"`
	}
	key := LongTermKey("mina")
	if err := PutJSON(ctx, store, key, doc{Entries: []string{"a", "b"}}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var got doc
	if err := GetJSON(ctx, store, key, &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[1] != "b" {
		t.Errorf("unexpected doc %+v", got)
	}

	_ = store.Put(ctx, key, []byte("{not json"))
	err := GetJSON(ctx, store, key, &got)
	if _, ok := err.(*SerializationError); !ok {
		t.Errorf("expected SerializationError, got %v", err)
	}
}

// TestConcurrentAccess writes distinct actors' documents in parallel.
func (s *DocumentStoreTestSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			key := LongTermKey(fmt.Sprintf("actor-%d", idx))
			if err := store.Put(ctx, key, []byte(fmt.Sprintf("%d", idx))); err != nil {
				errs <- err
				return
			}
			if _, err := store.Get(ctx, key); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
}
