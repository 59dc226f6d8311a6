package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/google/uuid"
)

// DefaultTimestamp replaces timestamps that cannot be real.
var DefaultTimestamp = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var (
	minValidTimestamp = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	maxValidTimestamp = time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
)

// ValidTimestamp reports whether ts lies in [1900-01-01, 3000-01-01).
func ValidTimestamp(ts time.Time) bool {
	return !ts.IsZero() && !ts.Before(minValidTimestamp) && ts.Before(maxValidTimestamp)
}

// Consolidation is the consolidator's output. The counts are computed
// here, never copied from the summarizer.
type Consolidation struct {
	Chunks             []Chunk `json:"chunks"`
	Reasoning          string  `json:"reasoning,omitempty"`
	OriginalEntryCount int     `json:"original_entry_count"`
	ChunkCount         int     `json:"chunk_count"`
}

// Consolidator turns short-term entries into chunks via a Summarizer.
type Consolidator struct {
	summarizer       Summarizer
	defaultTimestamp time.Time
	logger           logger.Logger
}

// NewConsolidator creates a consolidator. A zero defaultTimestamp means
// DefaultTimestamp.
func NewConsolidator(summarizer Summarizer, defaultTimestamp time.Time, log logger.Logger) *Consolidator {
	if defaultTimestamp.IsZero() {
		defaultTimestamp = DefaultTimestamp
	}
	if log == nil {
		log = logger.Global()
	}
	return &Consolidator{summarizer: summarizer, defaultTimestamp: defaultTimestamp, logger: log}
}

// Normalize drops nil entries, replaces invalid timestamps with the
// default and sorts ascending by timestamp, keeping the input order for
// ties. The input is not modified.
func (c *Consolidator) Normalize(entries []*ShortTermEntry) []ShortTermEntry {
	out := make([]ShortTermEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		n := e.clone()
		if !ValidTimestamp(n.Timestamp) {
			n.Timestamp = c.defaultTimestamp
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Consolidate summarizes entries into chunks. It always returns a usable
// Consolidation; when the summarizer fails the result has zero chunks and
// the error is a *StageError.
func (c *Consolidator) Consolidate(ctx context.Context, entries []*ShortTermEntry) (*Consolidation, error) {
	normalized := c.Normalize(entries)
	result := &Consolidation{
		Chunks:             make([]Chunk, 0),
		OriginalEntryCount: len(normalized),
	}
	if len(normalized) == 0 {
		return result, nil
	}
	if c.summarizer == nil {
		return result, &StageError{Stage: StageConsolidate, Cause: errNoCollaborator}
	}

	var summary *SummaryResult
	err := callSafely(func() error {
		var err error
		summary, err = c.summarizer.Summarize(ctx, normalized)
		return err
	})
	if err != nil {
		return result, &StageError{Stage: StageConsolidate, Cause: err}
	}
	if summary == nil {
		return result, nil
	}

	seen := make(map[string]struct{}, len(summary.Chunks))
	for _, ch := range summary.Chunks {
		if strings.TrimSpace(ch.Summary) == "" {
			continue
		}
		if _, dup := seen[ch.ID]; ch.ID == "" || dup {
			ch.ID = uuid.NewString()
		}
		seen[ch.ID] = struct{}{}

		if ch.OriginalEntryCount < 0 {
			ch.OriginalEntryCount = 0
		}
		if ch.OriginalEntryCount > len(normalized) {
			ch.OriginalEntryCount = len(normalized)
		}
		if !ValidTimestamp(ch.TimeRange.Start) {
			ch.TimeRange.Start = normalized[0].Timestamp
		}
		if !ValidTimestamp(ch.TimeRange.End) || ch.TimeRange.End.Before(ch.TimeRange.Start) {
			ch.TimeRange.End = normalized[len(normalized)-1].Timestamp
		}
		result.Chunks = append(result.Chunks, ch)
	}
	result.ChunkCount = len(result.Chunks)
	result.Reasoning = summary.Reasoning

	if summary.ChunkCount != 0 && summary.ChunkCount != result.ChunkCount {
		c.logger.DebugContext(ctx, "summarizer chunk count disagrees",
			"reported", summary.ChunkCount,
			"actual", result.ChunkCount,
		)
	}
	return result, nil
}

// ToPointers adapts a slice of entries to Consolidate's input.
func ToPointers(entries []ShortTermEntry) []*ShortTermEntry {
	out := make([]*ShortTermEntry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	return out
}
