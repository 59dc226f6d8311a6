package memory

import (
	"context"
	"time"
)

// SummaryResult is what a Summarizer returns. Its self-reported counts
// are informational only; the consolidator recomputes them.
type SummaryResult struct {
	Chunks             []Chunk `json:"chunks"`
	Reasoning          string  `json:"reasoning,omitempty"`
	OriginalEntryCount int     `json:"original_entry_count,omitempty"`
	ChunkCount         int     `json:"chunk_count,omitempty"`
}

// Summarizer groups short-term entries into narrative chunks. Entries are
// passed sorted by timestamp.
type Summarizer interface {
	Summarize(ctx context.Context, entries []ShortTermEntry) (*SummaryResult, error)
}

// ChunkScore rates one chunk. Overall from a collaborator is ignored.
type ChunkScore struct {
	Importance float64 `json:"importance"`
	Surprise   float64 `json:"surprise"`
	Overall    float64 `json:"overall,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// ChunkScorer rates chunks for retention. A nil score means "no opinion".
type ChunkScorer interface {
	ScoreChunk(ctx context.Context, chunk Chunk) (*ChunkScore, error)
}

// MaintenanceAction is a maintainer decision for one long-term entry.
type MaintenanceAction string

const (
	ActionKeep      MaintenanceAction = "keep"
	ActionRemove    MaintenanceAction = "remove"
	ActionMergeWith MaintenanceAction = "merge_with"
	ActionModify    MaintenanceAction = "modify"
)

// EntryDecision is an EntryScorer verdict. MergeTarget is an index into
// the store and is only read for merge_with; ModifiedContent only for
// modify.
type EntryDecision struct {
	Action          MaintenanceAction `json:"action"`
	MergeTarget     int               `json:"merge_target,omitempty"`
	ModifiedContent string            `json:"modified_content,omitempty"`
	Importance      float64           `json:"importance"`
	Surprise        float64           `json:"surprise"`
	Relevance       float64           `json:"relevance"`
	Reason          string            `json:"reason,omitempty"`
}

// EntryScorer evaluates store[index] in the context of the whole store.
// A nil decision means keep.
type EntryScorer interface {
	EvaluateEntry(ctx context.Context, store []LongTermEntry, index int, now time.Time) (*EntryDecision, error)
}

// MetricsRecorder receives memory pipeline measurements.
type MetricsRecorder interface {
	RecordStage(actor, stage string, success bool, duration time.Duration)
	RecordDayEnd(actor string, chunksKept, longTermSize int)
	SetShortTermSize(actor string, size int)
}

type nopMetrics struct{}

func (nopMetrics) RecordStage(string, string, bool, time.Duration) {}
func (nopMetrics) RecordDayEnd(string, int, int)                   {}
func (nopMetrics) SetShortTermSize(string, int)                    {}
