package collab

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goclaw/dayloop/pkg/memory"
)

// DefaultSalientWords raise a chunk's surprise and an entry's importance.
var DefaultSalientWords = []string{
	"interrupted", "emergency", "accident", "argument", "gift", "birthday",
	"doctor", "hospital", "fire", "lost", "found", "promotion", "first",
}

// KeywordScorer rates chunks by how many people, emotions and salient words
// they contain. It implements memory.ChunkScorer.
type KeywordScorer struct {
	salient []string
}

// NewKeywordScorer creates a scorer; no words means DefaultSalientWords.
func NewKeywordScorer(salient ...string) *KeywordScorer {
	if len(salient) == 0 {
		salient = DefaultSalientWords
	}
	return &KeywordScorer{salient: lowerAll(salient)}
}

// ScoreChunk implements memory.ChunkScorer.
func (s *KeywordScorer) ScoreChunk(ctx context.Context, chunk memory.Chunk) (*memory.ChunkScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := s.salientHits(chunk.Summary + " " + strings.Join(chunk.MainEvents, " "))

	importance := 0.2 + 0.15*float64(len(chunk.People)) + 0.1*float64(hits) +
		0.05*math.Min(float64(chunk.OriginalEntryCount), 6)
	surprise := 0.1 + 0.25*float64(hits) + 0.1*float64(len(chunk.Emotions))

	return &memory.ChunkScore{
		Importance: math.Min(importance, 1),
		Surprise:   math.Min(surprise, 1),
		Reason:     fmt.Sprintf("%d people, %d salient words", len(chunk.People), hits),
	}, nil
}

func (s *KeywordScorer) salientHits(text string) int {
	text = strings.ToLower(text)
	n := 0
	for _, w := range s.salient {
		if containsWord(text, w) {
			n++
		}
	}
	return n
}

// Entry scorer defaults.
const (
	DefaultMergeOverlap    = 0.6
	DefaultForgetAfterDays = 3 * 365
	forgettableImportance  = 0.3
)

// OverlapScorer merges long-term entries whose vocabularies overlap and
// forgets old, unimportant ones. It implements memory.EntryScorer.
type OverlapScorer struct {
	keywords    *KeywordScorer
	minOverlap  float64
	forgetAfter int
}

// NewOverlapScorer creates a scorer. Non-positive arguments use the
// defaults.
func NewOverlapScorer(minOverlap float64, forgetAfterDays int) *OverlapScorer {
	if minOverlap <= 0 {
		minOverlap = DefaultMergeOverlap
	}
	if forgetAfterDays <= 0 {
		forgetAfterDays = DefaultForgetAfterDays
	}
	return &OverlapScorer{
		keywords:    NewKeywordScorer(),
		minOverlap:  minOverlap,
		forgetAfter: forgetAfterDays,
	}
}

// EvaluateEntry implements memory.EntryScorer. An entry merges into the
// earliest earlier entry it resembles that is not itself merging, so merge
// targets never chain.
func (s *OverlapScorer) EvaluateEntry(ctx context.Context, store []memory.LongTermEntry, index int, now time.Time) (*memory.EntryDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if index < 0 || index >= len(store) {
		return nil, fmt.Errorf("index %d out of range for %d entries", index, len(store))
	}

	targets := s.mergeTargets(store)
	e := store[index]
	importance := s.importance(e)
	decision := &memory.EntryDecision{
		Action:     memory.ActionKeep,
		Importance: importance,
		Surprise:   math.Min(0.1+0.25*float64(s.keywords.salientHits(e.Content)), 1),
		Relevance:  0.5,
	}

	if t := targets[index]; t >= 0 {
		decision.Action = memory.ActionMergeWith
		decision.MergeTarget = t
		decision.Reason = fmt.Sprintf("overlaps entry %d", t)
		return decision, nil
	}

	if days := memory.DaysBetween(now, e.Timestamp); days > s.forgetAfter && importance < forgettableImportance && !isTarget(targets, index) {
		decision.Action = memory.ActionRemove
		decision.Reason = fmt.Sprintf("%d days old and unimportant", days)
	}
	return decision, nil
}

// mergeTargets returns, per entry, the index it merges into or -1.
func (s *OverlapScorer) mergeTargets(store []memory.LongTermEntry) []int {
	idx := memory.NewTextIndex(memory.DefaultBM25K1, memory.DefaultBM25B)
	for i, e := range store {
		idx.Add(i, e.Content)
	}

	targets := make([]int, len(store))
	for i := range store {
		targets[i] = -1
		for j := 0; j < i; j++ {
			if targets[j] >= 0 {
				continue
			}
			if idx.Overlap(i, j) >= s.minOverlap {
				targets[i] = j
				break
			}
		}
	}
	return targets
}

func (s *OverlapScorer) importance(e memory.LongTermEntry) float64 {
	v := 0.15 + 0.15*float64(len(e.RelatedActors)) + 0.15*float64(s.keywords.salientHits(e.Content))
	if e.Type == memory.TypeMerged {
		v += 0.1
	}
	return math.Min(v, 1)
}

func isTarget(targets []int, i int) bool {
	for _, t := range targets {
		if t == i {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
