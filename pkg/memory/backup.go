package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/goclaw/dayloop/pkg/storage"
	"github.com/oklog/ulid/v2"
)

// Backup is a snapshot of both memory documents.
type Backup struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor"`
	CreatedAt time.Time         `json:"created_at"`
	ShortTerm ShortTermDocument `json:"short_term"`
	LongTerm  LongTermDocument  `json:"long_term"`
}

// BackupInfo describes a stored snapshot without its contents.
type BackupInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ShortTermCount int       `json:"short_term_count"`
	LongTermCount  int       `json:"long_term_count"`
}

// backupIDs issues ULIDs, which sort in creation order.
type backupIDs struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

func newBackupIDs() *backupIDs {
	return &backupIDs{entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (b *backupIDs) next() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), b.entropy).String()
}

// Backup snapshots the short-term log and the long-term store and returns
// the snapshot id.
func (m *Manager) Backup(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backupLocked(ctx)
}

func (m *Manager) backupLocked(ctx context.Context) (string, error) {
	longTerm, err := m.LongTerm(ctx)
	if err != nil {
		return "", err
	}

	snap := Backup{
		ID:        m.backups.next(),
		Actor:     m.actor,
		CreatedAt: m.clock(),
		ShortTerm: ShortTermDocument{Entries: m.shortTerm.All(ctx), LastUpdated: m.clock()},
		LongTerm:  LongTermDocument{Entries: longTerm},
	}
	if err := storage.PutJSON(ctx, m.store, storage.BackupKey(m.actor, snap.ID), snap); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	m.logger.InfoContext(ctx, "memory backed up",
		"backup", snap.ID,
		"short_term", len(snap.ShortTerm.Entries),
		"long_term", len(snap.LongTerm.Entries),
	)
	return snap.ID, nil
}

// Restore replaces both memory documents with the snapshot id. A missing
// snapshot yields a *storage.NotFoundError and changes nothing.
func (m *Manager) Restore(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Backup
	if err := storage.GetJSON(ctx, m.store, storage.BackupKey(m.actor, id), &snap); err != nil {
		return err
	}
	if err := m.saveLongTerm(ctx, snap.LongTerm.Entries); err != nil {
		return err
	}
	if err := m.shortTerm.Replace(ctx, snap.ShortTerm.Entries); err != nil {
		return err
	}
	m.metrics.SetShortTermSize(m.actor, m.shortTerm.Len())
	m.logger.InfoContext(ctx, "memory restored", "backup", id)
	return nil
}

// ListBackups returns the actor's snapshots, oldest first.
func (m *Manager) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	ids, err := m.store.List(ctx, m.actor, storage.KindBackup)
	if err != nil {
		return nil, err
	}

	out := make([]BackupInfo, 0, len(ids))
	for _, id := range ids {
		var snap Backup
		if err := storage.GetJSON(ctx, m.store, storage.BackupKey(m.actor, id), &snap); err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, BackupInfo{
			ID:             id,
			CreatedAt:      snap.CreatedAt,
			ShortTermCount: len(snap.ShortTerm.Entries),
			LongTermCount:  len(snap.LongTerm.Entries),
		})
	}
	return out, nil
}
