package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goclaw/dayloop/pkg/storage"
	goredis "github.com/redis/go-redis/v9"
)

var errMockRedisUnavailable = errors.New("mock redis unavailable")

type mockRedisClient struct {
	goredis.Cmdable

	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	down    atomic.Bool
}

func newMockRedisClient(t *testing.T) *mockRedisClient {
	t.Helper()

	return &mockRedisClient{
		strings: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (m *mockRedisClient) Get(_ context.Context, key string) *goredis.StringCmd {
	if m.down.Load() {
		return goredis.NewStringResult("", errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.strings[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(val, nil)
}

func (m *mockRedisClient) Set(_ context.Context, key string, value interface{}, _ time.Duration) *goredis.StatusCmd {
	if m.down.Load() {
		return goredis.NewStatusResult("", errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		m.strings[key] = string(v)
	case string:
		m.strings[key] = v
	default:
		m.strings[key] = fmt.Sprint(v)
	}
	return goredis.NewStatusResult("OK", nil)
}

func (m *mockRedisClient) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if m.down.Load() {
		return goredis.NewIntResult(0, errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if _, ok := m.strings[key]; ok {
			delete(m.strings, key)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func (m *mockRedisClient) SAdd(_ context.Context, key string, members ...interface{}) *goredis.IntCmd {
	if m.down.Load() {
		return goredis.NewIntResult(0, errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	var added int64
	for _, member := range members {
		s := fmt.Sprint(member)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	return goredis.NewIntResult(added, nil)
}

func (m *mockRedisClient) SRem(_ context.Context, key string, members ...interface{}) *goredis.IntCmd {
	if m.down.Load() {
		return goredis.NewIntResult(0, errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for _, member := range members {
		s := fmt.Sprint(member)
		if _, exists := m.sets[key][s]; exists {
			delete(m.sets[key], s)
			removed++
		}
	}
	return goredis.NewIntResult(removed, nil)
}

func (m *mockRedisClient) SMembers(_ context.Context, key string) *goredis.StringSliceCmd {
	if m.down.Load() {
		return goredis.NewStringSliceResult(nil, errMockRedisUnavailable)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]string, 0, len(m.sets[key]))
	for s := range m.sets[key] {
		members = append(members, s)
	}
	return goredis.NewStringSliceResult(members, nil)
}

// TestRedisStorageSuite runs the full storage test suite against RedisStorage.
func TestRedisStorageSuite(t *testing.T) {
	suite := &storage.DocumentStoreTestSuite{
		NewStore: func(t *testing.T) storage.DocumentStore {
			return NewWithClient(newMockRedisClient(t), "")
		},
	}

	suite.RunAllTests(t)
}

func TestRedisStorage_KeyLayout(t *testing.T) {
	client := newMockRedisClient(t)
	s := NewWithClient(client, "test:")
	ctx := context.Background()

	if err := s.Put(ctx, storage.LongTermKey("mina"), []byte("{}")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok := client.strings["test:doc:mina/long_term/current"]; !ok {
		t.Errorf("document key not written, have %v", client.strings)
	}
	if _, ok := client.sets["test:idx:mina/long_term/"]["current"]; !ok {
		t.Errorf("index entry not written, have %v", client.sets)
	}
}

func TestRedisStorage_Unavailable(t *testing.T) {
	client := newMockRedisClient(t)
	s := NewWithClient(client, "")
	ctx := context.Background()

	client.down.Store(true)

	_, err := s.Get(ctx, storage.LongTermKey("mina"))
	if !errors.Is(err, errMockRedisUnavailable) {
		t.Errorf("expected wrapped unavailability, got %v", err)
	}
	if _, ok := err.(*storage.StorageUnavailableError); !ok {
		t.Errorf("expected StorageUnavailableError, got %T", err)
	}
	if err := s.Put(ctx, storage.LongTermKey("mina"), []byte("{}")); err == nil {
		t.Error("expected Put to fail while redis is down")
	}
	if _, err := s.List(ctx, "mina", storage.KindLongTerm); err == nil {
		t.Error("expected List to fail while redis is down")
	}
}
