package seenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	slogGorm "github.com/orandin/slog-gorm"

	"github.com/barangay-tools/bantay/pkg/backend"
)

// Store is the durable home of cursors, viewed sets, dismissed sets, and
// stream snapshots, keyed by (username, stream). All writes are
// read-modify-write so interleaved callers can't clobber each other's rows.
type Store struct {
	logger *slog.Logger
	db     *gorm.DB
}

func Open(logger *slog.Logger, sqlitePath string) (*Store, error) {
	gormLogger := slogGorm.New()

	db, err := gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.AutoMigrate(&Cursor{}, &ViewedID{}, &DismissedID{}, &Snapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// Set pragmas for performance
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=normal;")

	return &Store{
		logger: logger.With("module", "seenstore"),
		db:     db,
	}, nil
}

// GetCursor returns the persisted cursor for a (user, stream) pair. The
// second return value is false when no cursor exists yet (first run).
func (s *Store) GetCursor(user string, stream backend.StreamKind) (int64, bool, error) {
	var c Cursor
	err := s.db.Where("username = ? AND stream = ?", user, string(stream)).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get cursor: %w", err)
	}
	return c.LastSeenID, true, nil
}

// SetCursor persists the cursor for a (user, stream) pair, creating the row
// on first use.
func (s *Store) SetCursor(user string, stream backend.StreamKind, id int64) error {
	var c Cursor
	err := s.db.Where("username = ? AND stream = ?", user, string(stream)).First(&c).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to get cursor: %w", err)
		}
		c = Cursor{Username: user, Stream: string(stream), LastSeenID: id}
		if err := s.db.Create(&c).Error; err != nil {
			return fmt.Errorf("failed to create cursor: %w", err)
		}
		return nil
	}

	c.LastSeenID = id
	if err := s.db.Save(&c).Error; err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// ViewedSet returns every record ID the user has explicitly acknowledged on
// a stream.
func (s *Store) ViewedSet(user string, stream backend.StreamKind) (map[int64]struct{}, error) {
	var rows []ViewedID
	err := s.db.Where("username = ? AND stream = ?", user, string(stream)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load viewed set: %w", err)
	}
	set := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		set[r.RecordID] = struct{}{}
	}
	return set, nil
}

func (s *Store) AddViewed(user string, stream backend.StreamKind, id int64) error {
	row := ViewedID{Username: user, Stream: string(stream), RecordID: id}
	err := s.db.Where("username = ? AND stream = ? AND record_id = ?", user, string(stream), id).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to add viewed id: %w", err)
	}
	return nil
}

// DismissedSet returns every record ID the user has hidden from the feed on
// a stream.
func (s *Store) DismissedSet(user string, stream backend.StreamKind) (map[int64]struct{}, error) {
	var rows []DismissedID
	err := s.db.Where("username = ? AND stream = ?", user, string(stream)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load dismissed set: %w", err)
	}
	set := make(map[int64]struct{}, len(rows))
	for _, r := range rows {
		set[r.RecordID] = struct{}{}
	}
	return set, nil
}

func (s *Store) AddDismissed(user string, stream backend.StreamKind, id int64) error {
	row := DismissedID{Username: user, Stream: string(stream), RecordID: id}
	err := s.db.Where("username = ? AND stream = ? AND record_id = ?", user, string(stream), id).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("failed to add dismissed id: %w", err)
	}
	return nil
}

// ResetAll forgets everything we know about a user: cursors, viewed and
// dismissed sets, snapshots. The next reconciliation re-runs first-run
// policy for every stream.
func (s *Store) ResetAll(user string) error {
	if err := s.db.Unscoped().Where("username = ?", user).Delete(&Cursor{}).Error; err != nil {
		return fmt.Errorf("failed to delete cursors: %w", err)
	}
	if err := s.db.Unscoped().Where("username = ?", user).Delete(&ViewedID{}).Error; err != nil {
		return fmt.Errorf("failed to delete viewed ids: %w", err)
	}
	if err := s.db.Unscoped().Where("username = ?", user).Delete(&DismissedID{}).Error; err != nil {
		return fmt.Errorf("failed to delete dismissed ids: %w", err)
	}
	if err := s.db.Unscoped().Where("username = ?", user).Delete(&Snapshot{}).Error; err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the cached copy of a stream's latest fetch.
func (s *Store) SaveSnapshot(user string, stream backend.StreamKind, records []backend.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	var snap Snapshot
	err = s.db.Where("username = ? AND stream = ?", user, string(stream)).First(&snap).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to get snapshot: %w", err)
		}
		snap = Snapshot{Username: user, Stream: string(stream), Raw: raw, FetchedAt: time.Now()}
		if err := s.db.Create(&snap).Error; err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		return nil
	}

	snap.Raw = raw
	snap.FetchedAt = time.Now()
	if err := s.db.Save(&snap).Error; err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached copy of a stream's latest fetch, if any.
func (s *Store) GetSnapshot(user string, stream backend.StreamKind) ([]backend.Record, bool, error) {
	var snap Snapshot
	err := s.db.Where("username = ? AND stream = ?", user, string(stream)).First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var records []backend.Record
	if err := json.Unmarshal(snap.Raw, &records); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return records, true, nil
}

// RunSnapshotPruner deletes snapshots older than ttl every interval until
// the context is cancelled.
func (s *Store) RunSnapshotPruner(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Info("pruning stale snapshots")
			err := s.db.Unscoped().Where("fetched_at < ?", time.Now().Add(-ttl)).Delete(&Snapshot{}).Error
			if err != nil {
				s.logger.Error("failed to prune snapshots", "err", err)
			}
		}
	}
}
