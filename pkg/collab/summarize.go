package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goclaw/dayloop/pkg/memory"
	"github.com/google/uuid"
)

// Summarizer defaults.
const (
	DefaultChunkGap        = time.Hour
	DefaultMaxChunkEntries = 12
	maxMainEvents          = 5
)

// GapSummarizer groups entries into chunks, starting a new chunk when the
// time gap grows too long, the location changes or the chunk is full.
type GapSummarizer struct {
	gap        time.Duration
	maxEntries int
}

// NewGapSummarizer creates a summarizer; non-positive arguments use the
// defaults.
func NewGapSummarizer(gap time.Duration, maxEntries int) *GapSummarizer {
	if gap <= 0 {
		gap = DefaultChunkGap
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxChunkEntries
	}
	return &GapSummarizer{gap: gap, maxEntries: maxEntries}
}

// Summarize implements memory.Summarizer. Entries arrive sorted.
func (s *GapSummarizer) Summarize(ctx context.Context, entries []memory.ShortTermEntry) (*memory.SummaryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var groups [][]memory.ShortTermEntry
	var cur []memory.ShortTermEntry
	for _, e := range entries {
		if len(cur) > 0 && s.splits(cur, e) {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, e)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}

	chunks := make([]memory.Chunk, 0, len(groups))
	for _, g := range groups {
		chunks = append(chunks, buildChunk(g))
	}
	return &memory.SummaryResult{
		Chunks:    chunks,
		Reasoning: fmt.Sprintf("grouped by gaps over %s and location changes", s.gap),
	}, nil
}

func (s *GapSummarizer) splits(cur []memory.ShortTermEntry, next memory.ShortTermEntry) bool {
	last := cur[len(cur)-1]
	if len(cur) >= s.maxEntries {
		return true
	}
	if next.Timestamp.Sub(last.Timestamp) > s.gap {
		return true
	}
	loc := chunkLocation(cur)
	return loc != "" && next.Location != "" && next.Location != loc
}

func buildChunk(g []memory.ShortTermEntry) memory.Chunk {
	people := newStringSet()
	emotions := newStringSet()
	events := make([]string, 0, maxMainEvents)
	contents := make([]string, 0, len(g))

	for _, e := range g {
		people.add(peopleIn(e.Details)...)
		emotions.add(e.Emotions...)
		c := strings.TrimSpace(e.Content)
		if c == "" {
			continue
		}
		contents = append(contents, c)
		if isEvent(e.Kind) && len(events) < maxMainEvents {
			events = append(events, c)
		}
	}
	if len(events) == 0 {
		for _, c := range contents {
			if len(events) == maxMainEvents {
				break
			}
			events = append(events, c)
		}
	}

	loc := chunkLocation(g)
	first, last := g[0].Timestamp, g[len(g)-1].Timestamp

	var sb strings.Builder
	sb.WriteString(first.Format("15:04"))
	if !last.Equal(first) {
		sb.WriteString("-" + last.Format("15:04"))
	}
	if loc != "" {
		sb.WriteString(" at " + loc)
	}
	sb.WriteString(": ")
	sb.WriteString(strings.Join(events, "; "))
	if extra := len(contents) - len(events); extra > 0 {
		fmt.Fprintf(&sb, " (+%d more)", extra)
	}

	return memory.Chunk{
		ID:         uuid.NewString(),
		Summary:    sb.String(),
		TimeRange:  memory.TimeRange{Start: first, End: last},
		MainEvents: events,
		People:     people.items(),
		Emotions:   emotions.items(),
		Location:   loc,
	}
}

func isEvent(k memory.EntryKind) bool {
	switch k {
	case memory.KindActionComplete, memory.KindActionInterrupt, memory.KindDecision, memory.KindPerception:
		return true
	}
	return false
}

// chunkLocation is the most frequent location, ties going to the one seen
// first.
func chunkLocation(g []memory.ShortTermEntry) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, e := range g {
		if e.Location == "" {
			continue
		}
		if counts[e.Location] == 0 {
			order = append(order, e.Location)
		}
		counts[e.Location]++
	}
	best := ""
	for _, loc := range order {
		if counts[loc] > counts[best] {
			best = loc
		}
	}
	return best
}

// personKeys are detail fields that name other people.
var personKeys = []string{"target", "patient", "with", "people", "participants"}

// peopleIn reads person names out of an entry's details object.
func peopleIn(details json.RawMessage) []string {
	if len(details) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(details, &m); err != nil {
		return nil
	}
	if params, ok := m["params"].(map[string]any); ok {
		m = params
	}

	var out []string
	for _, key := range personKeys {
		switch v := m[key].(type) {
		case string:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

type stringSet struct {
	seen  map[string]struct{}
	order []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: make(map[string]struct{})}
}

func (s *stringSet) add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *stringSet) items() []string {
	if len(s.order) == 0 {
		return nil
	}
	return s.order
}
