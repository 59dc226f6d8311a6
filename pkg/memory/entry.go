// Package memory keeps an actor's experiences: an append-only short-term
// log, and a bounded long-term store fed by consolidation, retention
// filtering and periodic maintenance.
package memory

import (
	"encoding/json"
	"time"
)

// EntryKind classifies a short-term entry.
type EntryKind string

const (
	KindPerception      EntryKind = "perception"
	KindDecision        EntryKind = "decision"
	KindActionStart     EntryKind = "action_start"
	KindActionComplete  EntryKind = "action_complete"
	KindActionInterrupt EntryKind = "action_interrupt"
	KindPlan            EntryKind = "plan"
	KindSummary         EntryKind = "summary"
)

// ShortTermEntry is one experience. (Timestamp, Seq) identifies it.
type ShortTermEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Kind      EntryKind       `json:"kind"`
	Content   string          `json:"content"`
	Details   json.RawMessage `json:"details,omitempty"`
	Location  string          `json:"location,omitempty"`
	Emotions  []string        `json:"emotions,omitempty"`
}

// TimeRange bounds the entries a chunk was built from.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Chunk is a narrative summary of several short-term entries.
type Chunk struct {
	ID                 string    `json:"id"`
	Summary            string    `json:"summary"`
	TimeRange          TimeRange `json:"time_range"`
	MainEvents         []string  `json:"main_events,omitempty"`
	People             []string  `json:"people,omitempty"`
	Emotions           []string  `json:"emotions,omitempty"`
	Location           string    `json:"location,omitempty"`
	OriginalEntryCount int       `json:"original_entry_count"`
}

// Long-term entry types and categories written by this package.
const (
	TypeConsolidated     = "consolidated"
	TypeMerged           = "merged"
	CategoryDailySummary = "daily_summary"
	CategoryMerged       = "merged"
	LocationMultiple     = "Multiple"
)

// LongTermEntry is one durable memory.
type LongTermEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	Content       string    `json:"content"`
	Emotions      []string  `json:"emotions,omitempty"`
	RelatedActors []string  `json:"related_actors,omitempty"`
	Location      string    `json:"location,omitempty"`
}

// ShortTermDocument is the persisted short-term log.
type ShortTermDocument struct {
	Entries     []ShortTermEntry `json:"entries"`
	LastUpdated time.Time        `json:"last_updated"`
}

// LongTermDocument is the persisted long-term store.
type LongTermDocument struct {
	Entries []LongTermEntry `json:"entries"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// clone returns a deep copy of the entry.
func (e LongTermEntry) clone() LongTermEntry {
	e.Emotions = cloneStrings(e.Emotions)
	e.RelatedActors = cloneStrings(e.RelatedActors)
	return e
}

func (e ShortTermEntry) clone() ShortTermEntry {
	e.Emotions = cloneStrings(e.Emotions)
	if e.Details != nil {
		e.Details = append(json.RawMessage(nil), e.Details...)
	}
	return e
}

// ChunkToLongTerm converts a kept chunk into a long-term record.
func ChunkToLongTerm(c Chunk) LongTermEntry {
	return LongTermEntry{
		Timestamp:     c.TimeRange.Start,
		Type:          TypeConsolidated,
		Category:      CategoryDailySummary,
		Content:       c.Summary,
		Emotions:      cloneStrings(c.Emotions),
		RelatedActors: cloneStrings(c.People),
		Location:      LocationMultiple,
	}
}
