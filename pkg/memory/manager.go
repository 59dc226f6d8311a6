package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/logger"
	"github.com/goclaw/dayloop/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "dayloop.memory"

// DefaultShortTermKeep is how many recent entries compaction leaves alone.
const DefaultShortTermKeep = 10

// Collaborators bundles the scoring and summarizing services the
// pipeline depends on. Missing collaborators degrade their stage.
type Collaborators struct {
	Summarizer  Summarizer
	ChunkScorer ChunkScorer
	EntryScorer EntryScorer
}

// RunReport describes one day-end run.
type RunReport struct {
	Actor              string             `json:"actor"`
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at"`
	MaintenanceSkipped bool               `json:"maintenance_skipped"`
	Maintenance        *MaintenanceResult `json:"maintenance,omitempty"`
	Consolidation      *Consolidation     `json:"consolidation"`
	Filter             *FilterResult      `json:"filter"`
	Appended           int                `json:"appended"`
	LongTermSize       int                `json:"long_term_size"`
	ShortTermCleared   bool               `json:"short_term_cleared"`
	BackupID           string             `json:"backup_id,omitempty"`
	// Degraded lists the stages that fell back to their default.
	Degraded []string `json:"degraded,omitempty"`
}

func (r *RunReport) degrade(stage string) {
	r.Degraded = append(r.Degraded, stage)
}

// CompactionReport describes one short-term compaction.
type CompactionReport struct {
	Actor     string `json:"actor"`
	Retained  int    `json:"retained"`
	Processed int    `json:"processed"`
	Summaries int    `json:"summaries"`
	// Compacted is false when the log was left untouched.
	Compacted bool `json:"compacted"`
}

// Status summarizes an actor's memory.
type Status struct {
	Actor          string     `json:"actor"`
	ShortTermCount int        `json:"short_term_count"`
	LongTermCount  int        `json:"long_term_count"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	LastDegraded   []string   `json:"last_degraded,omitempty"`
}

// RecallHit is one long-term entry matching a query.
type RecallHit struct {
	Index int           `json:"index"`
	Score float64       `json:"score"`
	Entry LongTermEntry `json:"entry"`
}

// Manager owns an actor's long-term store and drives the day-end memory
// pipeline. It is the only writer of the long-term document.
type Manager struct {
	actor        string
	store        storage.DocumentStore
	shortTerm    *ShortTermLog
	consolidator *Consolidator
	filter       *RetentionFilter
	maintainer   *Maintainer

	clock          func() time.Time
	defaultTS      time.Time
	retentionRate  float64
	shortTermKeep  int
	backupOnDayEnd bool

	mu      sync.Mutex
	lastRun *RunReport

	backups *backupIDs
	logger  logger.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithClock sets the time source used for "now".
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithDefaultTimestamp sets the replacement for invalid entry timestamps.
func WithDefaultTimestamp(ts time.Time) Option {
	return func(m *Manager) {
		m.defaultTS = ts
	}
}

// WithRetentionRate sets the fraction of chunks kept by the filter.
func WithRetentionRate(rate float64) Option {
	return func(m *Manager) {
		m.retentionRate = rate
	}
}

// WithShortTermKeep sets how many recent entries compaction retains.
func WithShortTermKeep(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.shortTermKeep = n
		}
	}
}

// WithBackupOnDayEnd snapshots memory before every day-end run.
func WithBackupOnDayEnd(enabled bool) Option {
	return func(m *Manager) {
		m.backupOnDayEnd = enabled
	}
}

// NewManager creates a manager for actor. shortTerm must be bound to the
// same store and actor.
func NewManager(actor string, store storage.DocumentStore, shortTerm *ShortTermLog, collab Collaborators, opts ...Option) *Manager {
	m := &Manager{
		actor:         actor,
		store:         store,
		shortTerm:     shortTerm,
		clock:         time.Now,
		retentionRate: DefaultRetentionRate,
		shortTermKeep: DefaultShortTermKeep,
		backups:       newBackupIDs(),
		logger:        logger.Global(),
		metrics:       nopMetrics{},
		tracer:        otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.ForActor(m.logger, actor, "memory")
	m.consolidator = NewConsolidator(collab.Summarizer, m.defaultTS, m.logger)
	m.filter = NewRetentionFilter(collab.ChunkScorer, m.retentionRate)
	m.maintainer = NewMaintainer(collab.EntryScorer)
	return m
}

// Actor returns the owning actor's name.
func (m *Manager) Actor() string { return m.actor }

// ShortTerm returns the short-term log the manager drains.
func (m *Manager) ShortTerm() *ShortTermLog { return m.shortTerm }

// LongTerm loads the long-term store. A missing document is an empty store.
func (m *Manager) LongTerm(ctx context.Context) ([]LongTermEntry, error) {
	var doc LongTermDocument
	err := storage.GetJSON(ctx, m.store, storage.LongTermKey(m.actor), &doc)
	if err != nil {
		if storage.IsNotFound(err) {
			return make([]LongTermEntry, 0), nil
		}
		return nil, fmt.Errorf("load long-term store: %w", err)
	}
	if doc.Entries == nil {
		doc.Entries = make([]LongTermEntry, 0)
	}
	return doc.Entries, nil
}

func (m *Manager) saveLongTerm(ctx context.Context, entries []LongTermEntry) error {
	if entries == nil {
		entries = make([]LongTermEntry, 0)
	}
	if err := storage.PutJSON(ctx, m.store, storage.LongTermKey(m.actor), LongTermDocument{Entries: entries}); err != nil {
		return fmt.Errorf("persist long-term store: %w", err)
	}
	return nil
}

// ProcessDayEndMemory runs the day-end pipeline: maintain the existing
// long-term store and persist it, consolidate the short-term log, filter
// the chunks, append the kept ones and persist, then remove the consumed
// entries from the short-term log. Collaborator failures degrade their stage and are listed in the
// report. An error is returned only when the long-term store cannot be
// read or the final write fails; the short-term log is kept in that case.
func (m *Manager) ProcessDayEndMemory(ctx context.Context) (*RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "memory.day_end", trace.WithAttributes(
		attribute.String("actor", m.actor),
	))
	defer span.End()

	now := m.clock()
	report := &RunReport{Actor: m.actor, StartedAt: now}

	if m.backupOnDayEnd {
		id, err := m.backupLocked(ctx)
		if err != nil {
			m.logger.WarnContext(ctx, "pre day-end backup failed", "error", err)
		} else {
			report.BackupID = id
		}
	}

	longTerm, err := m.LongTerm(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, err
	}

	// 1. Maintain what is already stored.
	if len(longTerm) == 0 {
		report.MaintenanceSkipped = true
	} else {
		longTerm = m.maintain(ctx, longTerm, now, report)
		if err := m.saveLongTerm(ctx, longTerm); err != nil {
			m.stageFailed(ctx, report, StagePersist, err)
		}
	}

	// 2. Consolidate today's experiences.
	entries := m.shortTerm.All(ctx)
	start := time.Now()
	consolidation, err := m.consolidator.Consolidate(ctx, ToPointers(entries))
	m.metrics.RecordStage(m.actor, StageConsolidate, err == nil, time.Since(start))
	if err != nil {
		m.stageFailed(ctx, report, StageConsolidate, err)
	}
	report.Consolidation = consolidation

	// 3. Keep the most significant chunks.
	start = time.Now()
	filtered, err := m.filter.Filter(ctx, consolidation.Chunks)
	m.metrics.RecordStage(m.actor, StageFilter, err == nil, time.Since(start))
	if err != nil {
		m.stageFailed(ctx, report, StageFilter, err)
	}
	report.Filter = filtered

	// 4. Append and persist.
	for _, c := range filtered.Kept() {
		longTerm = append(longTerm, ChunkToLongTerm(c))
		report.Appended++
	}
	report.LongTermSize = len(longTerm)
	if err := m.saveLongTerm(ctx, longTerm); err != nil {
		m.stageFailed(ctx, report, StagePersist, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		report.FinishedAt = m.clock()
		m.lastRun = report
		return report, err
	}

	// 5. Drop what was consolidated. Entries recorded while the pipeline
	// ran stay for the next day.
	if err := m.shortTerm.Compact(ctx, entries, nil); err != nil {
		m.stageFailed(ctx, report, StagePersist, err)
	} else {
		report.ShortTermCleared = true
	}
	m.metrics.SetShortTermSize(m.actor, m.shortTerm.Len())

	report.FinishedAt = m.clock()
	m.lastRun = report
	m.metrics.RecordDayEnd(m.actor, report.Appended, report.LongTermSize)

	span.SetAttributes(
		attribute.Int("memory.chunks", consolidation.ChunkCount),
		attribute.Int("memory.appended", report.Appended),
		attribute.Int("memory.long_term_size", report.LongTermSize),
	)
	if len(report.Degraded) > 0 {
		span.SetStatus(codes.Error, "degraded")
	} else {
		span.SetStatus(codes.Ok, "ok")
	}

	m.logger.InfoContext(ctx, "day-end memory processed",
		"entries", consolidation.OriginalEntryCount,
		"chunks", consolidation.ChunkCount,
		"kept", report.Appended,
		"long_term_size", report.LongTermSize,
		"degraded", report.Degraded,
	)
	return report, nil
}

// maintain runs the maintainer and falls back to the unchanged store on
// any failure.
func (m *Manager) maintain(ctx context.Context, longTerm []LongTermEntry, now time.Time, report *RunReport) []LongTermEntry {
	start := time.Now()
	result, err := m.maintainer.Maintain(ctx, longTerm, now)
	m.metrics.RecordStage(m.actor, StageMaintain, err == nil, time.Since(start))
	if err != nil {
		m.stageFailed(ctx, report, StageMaintain, err)
		result = keepAll(longTerm)
	}
	report.Maintenance = result
	return result.Entries
}

func (m *Manager) stageFailed(ctx context.Context, report *RunReport, stage string, err error) {
	report.degrade(stage)
	m.logger.WarnContext(ctx, "memory stage degraded", "stage", stage, "error", err)
}

// CompactShortTerm keeps the newest keep entries of the short-term log
// and replaces the older ones with summary entries built from their kept
// chunks. keep <= 0 uses the configured default. When nothing is older
// than the newest keep entries, or no chunk survives, the log is left
// unchanged.
func (m *Manager) CompactShortTerm(ctx context.Context, keep int) (*CompactionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keep <= 0 {
		keep = m.shortTermKeep
	}
	ctx, span := m.tracer.Start(ctx, "memory.compact", trace.WithAttributes(
		attribute.String("actor", m.actor),
		attribute.Int("memory.keep", keep),
	))
	defer span.End()

	entries := m.shortTerm.All(ctx)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	report := &CompactionReport{Actor: m.actor, Retained: len(entries)}
	if len(entries) <= keep {
		return report, nil
	}
	older := entries[keep:]
	report.Processed = len(older)

	consolidation, err := m.consolidator.Consolidate(ctx, ToPointers(older))
	if err != nil || len(consolidation.Chunks) == 0 {
		m.logger.DebugContext(ctx, "nothing to compact", "processed", len(older), "error", err)
		return report, nil
	}
	filtered, err := m.filter.Filter(ctx, consolidation.Chunks)
	if err != nil {
		m.logger.WarnContext(ctx, "compaction filter degraded", "error", err)
	}
	kept := filtered.Kept()
	if len(kept) == 0 {
		return report, nil
	}

	summaries := make([]ShortTermEntry, 0, len(kept))
	for _, c := range kept {
		s, err := chunkToSummary(c)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := m.shortTerm.Compact(ctx, older, summaries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return nil, err
	}

	report.Retained = keep
	report.Summaries = len(summaries)
	report.Compacted = true
	m.metrics.SetShortTermSize(m.actor, m.shortTerm.Len())
	m.logger.InfoContext(ctx, "short-term log compacted",
		"processed", report.Processed,
		"summaries", report.Summaries,
	)
	return report, nil
}

type summaryDetails struct {
	ChunkID            string    `json:"chunk_id"`
	TimeRange          TimeRange `json:"time_range"`
	MainEvents         []string  `json:"main_events,omitempty"`
	People             []string  `json:"people,omitempty"`
	OriginalEntryCount int       `json:"original_entry_count"`
}

// chunkToSummary turns a chunk back into a short-term entry.
func chunkToSummary(c Chunk) (ShortTermEntry, error) {
	details, err := json.Marshal(summaryDetails{
		ChunkID:            c.ID,
		TimeRange:          c.TimeRange,
		MainEvents:         c.MainEvents,
		People:             c.People,
		OriginalEntryCount: c.OriginalEntryCount,
	})
	if err != nil {
		return ShortTermEntry{}, &storage.SerializationError{Operation: "marshal summary", Cause: err}
	}
	return ShortTermEntry{
		Timestamp: c.TimeRange.End,
		Kind:      KindSummary,
		Content:   c.Summary,
		Details:   details,
		Location:  c.Location,
		Emotions:  cloneStrings(c.Emotions),
	}, nil
}

// Status reports entry counts and the last day-end run.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	longTerm, err := m.LongTerm(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := &Status{
		Actor:          m.actor,
		ShortTermCount: m.shortTerm.Len(),
		LongTermCount:  len(longTerm),
	}
	if m.lastRun != nil {
		finished := m.lastRun.FinishedAt
		st.LastRun = &finished
		st.LastDegraded = append([]string(nil), m.lastRun.Degraded...)
	}
	return st, nil
}

// LastRun returns the most recent day-end report, or nil.
func (m *Manager) LastRun() *RunReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

// Recall searches the long-term store for entries relevant to query.
func (m *Manager) Recall(ctx context.Context, query string, topK int) ([]RecallHit, error) {
	if topK <= 0 {
		return nil, &InputInvalidError{Field: "top_k", Reason: "must be positive"}
	}
	longTerm, err := m.LongTerm(ctx)
	if err != nil {
		return nil, err
	}

	hits := IndexLongTerm(longTerm).Search(query, topK)
	out := make([]RecallHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, RecallHit{Index: h.ID, Score: h.Score, Entry: longTerm[h.ID]})
	}
	return out, nil
}
