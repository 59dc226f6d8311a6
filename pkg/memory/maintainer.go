package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// RecencyScore maps an age in days to a freshness score in [0, 1]. It is
// non-increasing and continuous at 365 and 1095 days.
func RecencyScore(days float64) float64 {
	if days < 0 {
		days = 0
	}
	switch {
	case days <= 365:
		return 0.8 + (365-days)/365*0.2
	case days <= 1095:
		return 0.5 + (1095-days)/730*0.3
	default:
		return math.Max(0, 0.5-(days-1095)/1095*0.5)
	}
}

// EntryOverall is 0.1*recency + 0.25*surprise + 0.4*importance + 0.25*relevance.
func EntryOverall(recency, surprise, importance, relevance float64) float64 {
	return 0.1*recency + 0.25*surprise + 0.4*importance + 0.25*relevance
}

// DaysBetween returns the number of calendar days between two instants,
// compared as dates in a's location. 23:00 yesterday is one day ago.
func DaysBetween(a, b time.Time) int {
	b = b.In(a.Location())
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := da.Sub(db)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

// EntryScore is the locally computed assessment of one entry.
type EntryScore struct {
	Index      int               `json:"index"`
	Action     MaintenanceAction `json:"action"`
	Recency    float64           `json:"recency"`
	Importance float64           `json:"importance"`
	Surprise   float64           `json:"surprise"`
	Relevance  float64           `json:"relevance"`
	Overall    float64           `json:"overall"`
}

// MaintenanceResult is the maintained store plus bookkeeping.
type MaintenanceResult struct {
	Entries       []LongTermEntry `json:"entries"`
	Scores        []EntryScore    `json:"scores"`
	OriginalCount int             `json:"original_count"`
	Kept          int             `json:"kept"`
	Removed       int             `json:"removed"`
	Modified      int             `json:"modified"`
	MergeGroups   int             `json:"merge_groups"`
	FinalCount    int             `json:"final_count"`
}

// Maintainer re-evaluates the long-term store.
type Maintainer struct {
	scorer EntryScorer
}

// NewMaintainer creates a maintainer.
func NewMaintainer(scorer EntryScorer) *Maintainer {
	return &Maintainer{scorer: scorer}
}

// Maintain evaluates every entry and applies the decisions. A scorer
// failure returns the store unchanged with a *StageError; malformed merge
// requests return an *InputInvalidError and no result. store is never
// modified.
func (m *Maintainer) Maintain(ctx context.Context, store []LongTermEntry, now time.Time) (*MaintenanceResult, error) {
	decisions, err := m.evaluate(ctx, store, now)
	if err != nil {
		return keepAll(store), &StageError{Stage: StageMaintain, Cause: err}
	}
	return Apply(store, decisions, now)
}

func (m *Maintainer) evaluate(ctx context.Context, store []LongTermEntry, now time.Time) ([]*EntryDecision, error) {
	decisions := make([]*EntryDecision, len(store))
	if len(store) == 0 {
		return decisions, nil
	}
	if m.scorer == nil {
		return nil, errNoCollaborator
	}

	view := make([]LongTermEntry, len(store))
	for i, e := range store {
		view[i] = e.clone()
	}
	for i := range store {
		err := callSafely(func() error {
			d, err := m.scorer.EvaluateEntry(ctx, view, i, now)
			decisions[i] = d
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("evaluate entry %d: %w", i, err)
		}
	}
	return decisions, nil
}

func keepAll(store []LongTermEntry) *MaintenanceResult {
	out := make([]LongTermEntry, len(store))
	for i, e := range store {
		out[i] = e.clone()
	}
	return &MaintenanceResult{
		Entries:       out,
		Scores:        make([]EntryScore, 0),
		OriginalCount: len(store),
		Kept:          len(store),
		FinalCount:    len(store),
	}
}

// Apply applies decisions to store. decisions[i] belongs to store[i]; nil
// decisions mean keep with low scores. Entries that merge into the same
// target collapse, together with the target, into one merged entry at the
// target's position; the target's own decision is ignored.
func Apply(store []LongTermEntry, decisions []*EntryDecision, now time.Time) (*MaintenanceResult, error) {
	if len(decisions) != len(store) {
		return nil, &InputInvalidError{Field: "decisions", Reason: fmt.Sprintf("got %d for %d entries", len(decisions), len(store))}
	}

	resolved := make([]EntryDecision, len(store))
	for i, d := range decisions {
		if d == nil {
			resolved[i] = EntryDecision{Action: ActionKeep, Importance: missingScore, Surprise: missingScore, Relevance: missingScore}
			continue
		}
		resolved[i] = *d
		if resolved[i].Action == "" {
			resolved[i].Action = ActionKeep
		}
	}

	groups := make(map[int][]int)
	for i, d := range resolved {
		switch d.Action {
		case ActionKeep, ActionRemove, ActionModify:
		case ActionMergeWith:
			t := d.MergeTarget
			switch {
			case t < 0 || t >= len(store):
				return nil, &InputInvalidError{Field: fmt.Sprintf("decisions[%d].merge_target", i), Reason: fmt.Sprintf("index %d out of range", t)}
			case t == i:
				return nil, &InputInvalidError{Field: fmt.Sprintf("decisions[%d].merge_target", i), Reason: "entry merges with itself"}
			case resolved[t].Action == ActionMergeWith:
				return nil, &InputInvalidError{Field: fmt.Sprintf("decisions[%d].merge_target", i), Reason: fmt.Sprintf("target %d is itself merging", t)}
			}
			groups[t] = append(groups[t], i)
		default:
			return nil, &InputInvalidError{Field: fmt.Sprintf("decisions[%d].action", i), Reason: "unknown action " + string(d.Action)}
		}
	}

	res := &MaintenanceResult{
		Entries:       make([]LongTermEntry, 0, len(store)),
		Scores:        make([]EntryScore, len(store)),
		OriginalCount: len(store),
	}

	for i, d := range resolved {
		rec := RecencyScore(float64(DaysBetween(now, store[i].Timestamp)))
		imp, sur, rel := clamp01(d.Importance), clamp01(d.Surprise), clamp01(d.Relevance)
		res.Scores[i] = EntryScore{
			Index:      i,
			Action:     d.Action,
			Recency:    rec,
			Importance: imp,
			Surprise:   sur,
			Relevance:  rel,
			Overall:    EntryOverall(rec, sur, imp, rel),
		}

		if sources, ok := groups[i]; ok {
			members := append([]int{i}, sources...)
			sort.Ints(members)
			res.Entries = append(res.Entries, mergeEntries(store, i, members))
			res.MergeGroups++
			continue
		}

		switch d.Action {
		case ActionKeep:
			res.Entries = append(res.Entries, store[i].clone())
			res.Kept++
		case ActionModify:
			e := store[i].clone()
			if strings.TrimSpace(d.ModifiedContent) != "" {
				e.Content = d.ModifiedContent
				res.Modified++
			} else {
				res.Kept++
			}
			res.Entries = append(res.Entries, e)
		case ActionRemove:
			res.Removed++
		case ActionMergeWith:
			// Emitted with its target.
		}
	}

	res.FinalCount = res.Kept + res.Modified + res.MergeGroups
	return res, nil
}

// mergeEntries builds the synthetic entry for a merge group. members are
// store indices in ascending order and include target.
func mergeEntries(store []LongTermEntry, target int, members []int) LongTermEntry {
	merged := LongTermEntry{
		Type:     TypeMerged,
		Category: CategoryMerged,
		Location: store[target].Location,
	}

	contents := make([]string, 0, len(members))
	emotions := newOrderedSet()
	actors := newOrderedSet()
	for _, idx := range members {
		e := store[idx]
		if c := strings.TrimSpace(e.Content); c != "" {
			contents = append(contents, c)
		}
		emotions.add(e.Emotions...)
		actors.add(e.RelatedActors...)
		if e.Timestamp.After(merged.Timestamp) {
			merged.Timestamp = e.Timestamp
		}
		if e.Location != store[target].Location {
			merged.Location = LocationMultiple
		}
	}

	merged.Content = strings.Join(contents, "\n")
	merged.Emotions = emotions.items()
	merged.RelatedActors = actors.items()
	return merged
}

type orderedSet struct {
	seen  map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok || v == "" {
			continue
		}
		s.seen[v] = struct{}{}
		s.order = append(s.order, v)
	}
}

func (s *orderedSet) items() []string {
	if len(s.order) == 0 {
		return nil
	}
	return s.order
}
