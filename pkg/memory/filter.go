package memory

import (
	"context"
	"math"
	"sort"
)

// DefaultRetentionRate is the fraction of chunks kept per filtering pass.
const DefaultRetentionRate = 0.7

const (
	missingScore  = 0.3
	fallbackScore = 0.5
)

// ScoredChunk is a chunk with its locally computed score.
type ScoredChunk struct {
	Chunk      Chunk   `json:"chunk"`
	Importance float64 `json:"importance"`
	Surprise   float64 `json:"surprise"`
	Overall    float64 `json:"overall"`
	Kept       bool    `json:"kept"`
}

// FilterResult classifies chunks as kept or filtered.
type FilterResult struct {
	// Scored lists every chunk in input order.
	Scored              []ScoredChunk `json:"scored"`
	TargetKeepCount     int           `json:"target_keep_count"`
	KeptCount           int           `json:"kept_count"`
	RetentionPercentage float64       `json:"retention_percentage"`
}

// Kept returns the kept chunks in input order.
func (r *FilterResult) Kept() []Chunk {
	out := make([]Chunk, 0, r.KeptCount)
	for _, s := range r.Scored {
		if s.Kept {
			out = append(out, s.Chunk)
		}
	}
	return out
}

// RetentionFilter keeps the top fraction of chunks by score.
type RetentionFilter struct {
	scorer ChunkScorer
	rate   float64
}

// NewRetentionFilter creates a filter. A rate outside (0, 1] means
// DefaultRetentionRate.
func NewRetentionFilter(scorer ChunkScorer, rate float64) *RetentionFilter {
	if rate <= 0 || rate > 1 {
		rate = DefaultRetentionRate
	}
	return &RetentionFilter{scorer: scorer, rate: rate}
}

// TargetKeepCount returns max(1, floor(n*rate)).
func (f *RetentionFilter) TargetKeepCount(n int) int {
	return max(1, int(math.Floor(float64(n)*f.rate)))
}

// ChunkOverall is 0.4*importance + 0.6*surprise.
func ChunkOverall(importance, surprise float64) float64 {
	return 0.4*importance + 0.6*surprise
}

// Filter scores and ranks chunks. If the scorer fails every chunk is kept
// with neutral scores and the error is a *StageError.
func (f *RetentionFilter) Filter(ctx context.Context, chunks []Chunk) (*FilterResult, error) {
	result := &FilterResult{Scored: make([]ScoredChunk, len(chunks))}
	if len(chunks) == 0 {
		return result, nil
	}
	result.TargetKeepCount = f.TargetKeepCount(len(chunks))

	scores, err := f.score(ctx, chunks)
	if err != nil {
		for i, ch := range chunks {
			result.Scored[i] = ScoredChunk{
				Chunk:      ch,
				Importance: fallbackScore,
				Surprise:   fallbackScore,
				Overall:    ChunkOverall(fallbackScore, fallbackScore),
				Kept:       true,
			}
		}
		result.KeptCount = len(chunks)
		result.RetentionPercentage = 1.0
		return result, &StageError{Stage: StageFilter, Cause: err}
	}

	for i, ch := range chunks {
		imp, sur := missingScore, missingScore
		if s := scores[i]; s != nil {
			imp, sur = clamp01(s.Importance), clamp01(s.Surprise)
		}
		result.Scored[i] = ScoredChunk{
			Chunk:      ch,
			Importance: imp,
			Surprise:   sur,
			Overall:    ChunkOverall(imp, sur),
		}
	}

	order := make([]int, len(chunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return result.Scored[order[a]].Overall > result.Scored[order[b]].Overall
	})

	keep := min(result.TargetKeepCount, len(chunks))
	for _, idx := range order[:keep] {
		result.Scored[idx].Kept = true
	}
	result.KeptCount = keep
	result.RetentionPercentage = float64(keep) / float64(len(chunks))
	return result, nil
}

func (f *RetentionFilter) score(ctx context.Context, chunks []Chunk) ([]*ChunkScore, error) {
	if f.scorer == nil {
		return nil, errNoCollaborator
	}
	scores := make([]*ChunkScore, len(chunks))
	for i, ch := range chunks {
		err := callSafely(func() error {
			s, err := f.scorer.ScoreChunk(ctx, ch)
			scores[i] = s
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
