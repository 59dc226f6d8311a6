package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/storage"
)

// ShortTermLog is an actor's append-only experience log. Every mutation
// writes the whole document before returning.
type ShortTermLog struct {
	actor string
	store storage.DocumentStore
	clock func() time.Time

	mu      sync.Mutex
	entries []ShortTermEntry
	seq     uint64
}

// NewShortTermLog creates a log bound to actor's short-term document.
// Call Load to pick up an existing document.
func NewShortTermLog(actor string, store storage.DocumentStore, clock func() time.Time) *ShortTermLog {
	if clock == nil {
		clock = time.Now
	}
	return &ShortTermLog{
		actor:   actor,
		store:   store,
		clock:   clock,
		entries: make([]ShortTermEntry, 0),
	}
}

// Load replaces the in-memory log with the persisted document. A missing
// document yields an empty log.
func (l *ShortTermLog) Load(ctx context.Context) error {
	var doc ShortTermDocument
	err := storage.GetJSON(ctx, l.store, storage.ShortTermKey(l.actor), &doc)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("load short-term log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make([]ShortTermEntry, 0, len(doc.Entries))
	l.seq = 0
	for _, e := range doc.Entries {
		l.entries = append(l.entries, e)
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
	}
	return nil
}

// Append records a new entry stamped with the log's clock. details is
// marshalled to JSON; nil means no details.
func (l *ShortTermLog) Append(ctx context.Context, kind EntryKind, content string, details any) (ShortTermEntry, error) {
	var raw json.RawMessage
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return ShortTermEntry{}, &storage.SerializationError{Operation: "marshal details", Cause: err}
		}
		raw = data
	}
	return l.AppendEntry(ctx, ShortTermEntry{Kind: kind, Content: content, Details: raw})
}

// AppendEntry records e. A zero timestamp is replaced by the clock; Seq is
// always assigned by the log. On a persistence failure the entry is not
// kept.
func (l *ShortTermLog) AppendEntry(ctx context.Context, e ShortTermEntry) (ShortTermEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock()
	}
	e.Seq = l.seq + 1

	next := append(append(make([]ShortTermEntry, 0, len(l.entries)+1), l.entries...), e)
	if err := l.persistLocked(ctx, next); err != nil {
		return ShortTermEntry{}, err
	}
	l.entries = next
	l.seq = e.Seq
	return e.clone(), nil
}

// All returns a copy of the entries in append order.
func (l *ShortTermLog) All(ctx context.Context) []ShortTermEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ShortTermEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *ShortTermLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log and persists the empty document.
func (l *ShortTermLog) Clear(ctx context.Context) error {
	return l.Replace(ctx, nil)
}

// Replace swaps the whole log, used by compaction and restore. Sequence
// numbers keep increasing across replacements.
func (l *ShortTermLog) Replace(ctx context.Context, entries []ShortTermEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]ShortTermEntry, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.clone())
	}
	if err := l.persistLocked(ctx, next); err != nil {
		return err
	}
	l.entries = next
	for _, e := range next {
		if e.Seq > l.seq {
			l.seq = e.Seq
		}
	}
	return nil
}

// Compact removes the entries whose Seq appears in drop and appends
// summaries after the survivors. Entries appended since drop was read are
// kept. Summaries get fresh sequence numbers.
func (l *ShortTermLog) Compact(ctx context.Context, drop []ShortTermEntry, summaries []ShortTermEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := make(map[uint64]struct{}, len(drop))
	for _, e := range drop {
		dropped[e.Seq] = struct{}{}
	}

	next := make([]ShortTermEntry, 0, len(l.entries)+len(summaries))
	for _, e := range l.entries {
		if _, ok := dropped[e.Seq]; !ok {
			next = append(next, e)
		}
	}
	seq := l.seq
	for _, e := range summaries {
		seq++
		e = e.clone()
		e.Seq = seq
		if e.Timestamp.IsZero() {
			e.Timestamp = l.clock()
		}
		next = append(next, e)
	}

	if err := l.persistLocked(ctx, next); err != nil {
		return err
	}
	l.entries = next
	l.seq = seq
	return nil
}

func (l *ShortTermLog) persistLocked(ctx context.Context, entries []ShortTermEntry) error {
	doc := ShortTermDocument{Entries: entries, LastUpdated: l.clock()}
	if err := storage.PutJSON(ctx, l.store, storage.ShortTermKey(l.actor), doc); err != nil {
		return fmt.Errorf("persist short-term log: %w", err)
	}
	return nil
}
