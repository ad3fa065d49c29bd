package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncMetadata is the catalog row for one mirrored table. Timestamp columns
// hold fixed-width UTC strings (see timeLayout).
type SyncMetadata struct {
	TableName          string  `db:"table_name"`
	Strategy           string  `db:"strategy"`
	TTL                int64   `db:"ttl"`
	ChunkSize          int64   `db:"chunk_size"`
	WhereClause        *string `db:"where_clause"`
	OrderBy            string  `db:"order_by"`
	IncrementalField   *string `db:"incremental_field"`
	SchemaHash         string  `db:"schema_hash"`
	SchemaVersion      int64   `db:"schema_version"`
	TotalFields        int64   `db:"total_fields"`
	RowCount           int64   `db:"row_count"`
	LocalRowCount      int64   `db:"local_row_count"`
	MinID              *int64  `db:"min_id"`
	MaxID              *int64  `db:"max_id"`
	LastSyncAt         *string `db:"last_sync_at"`
	NextSyncAt         *string `db:"next_sync_at"`
	LastSyncCheckpoint *string `db:"last_sync_checkpoint"`
	LastSyncDurationMS *int64  `db:"last_sync_duration_ms"`
	LastSyncRows       *int64  `db:"last_sync_rows"`
	TotalSyncs         int64   `db:"total_syncs"`
	FailedSyncs        int64   `db:"failed_syncs"`
	LastError          *string `db:"last_error"`
	LastErrorAt        *string `db:"last_error_at"`
	CreatedAt          string  `db:"created_at"`
	UpdatedAt          string  `db:"updated_at"`
}

// GetMetadata returns the catalog row for table, or ErrNotRegistered.
func (s *Store) GetMetadata(ctx context.Context, table string) (*SyncMetadata, error) {
	var m SyncMetadata
	err := s.db.GetContext(ctx, &m,
		"SELECT * FROM _sync_metadata WHERE table_name = ?", table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotRegisteredErr(table)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMetadata returns every catalog row ordered by table name.
func (s *Store) ListMetadata(ctx context.Context) ([]SyncMetadata, error) {
	var out []SyncMetadata
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM _sync_metadata ORDER BY table_name")
	return out, err
}

// IsStale reports whether table needs a sync: not registered, never given a
// freshness deadline, or past it.
func (s *Store) IsStale(ctx context.Context, table string) (bool, error) {
	m, err := s.GetMetadata(ctx, table)
	if errors.Is(err, ErrNotRegistered) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if m.NextSyncAt == nil {
		return true, nil
	}
	next, err := parseTime(*m.NextSyncAt)
	if err != nil {
		return true, nil
	}
	return time.Now().UTC().After(next), nil
}

// SyncOutcome carries the measurements of a completed run into the catalog.
type SyncOutcome struct {
	TTLSeconds    int64
	RowsFetched   int64
	RowsInserted  int64
	LocalRowCount int64
	DurationMS    int64
	MinID         *int64
	MaxID         *int64
	Checkpoint    *string // nil keeps the previous checkpoint
}

// RecordSyncSuccess updates the catalog after a successful run: freshness
// window, counters, id range and checkpoint. The metadata row update is the
// linearization point of the run; it happens after all chunks committed.
func (s *Store) RecordSyncSuccess(ctx context.Context, table string, o SyncOutcome) error {
	now := nowUTC()
	next := formatTime(time.Now().UTC().Add(time.Duration(o.TTLSeconds) * time.Second))

	return execWithRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE _sync_metadata SET
				last_sync_at = ?,
				next_sync_at = ?,
				row_count = ?,
				local_row_count = ?,
				min_id = COALESCE(?, min_id),
				max_id = COALESCE(?, max_id),
				last_sync_checkpoint = COALESCE(?, last_sync_checkpoint),
				last_sync_duration_ms = ?,
				last_sync_rows = ?,
				total_syncs = total_syncs + 1,
				updated_at = ?
			WHERE table_name = ?`,
			now, next, o.RowsFetched, o.LocalRowCount, o.MinID, o.MaxID,
			o.Checkpoint, o.DurationMS, o.RowsInserted, now, table)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return NotRegisteredErr(table)
		}

		_, err = s.db.ExecContext(ctx, `
			UPDATE _cache_stats SET
				total_syncs = total_syncs + 1,
				successful_syncs = successful_syncs + 1,
				last_activity_at = ?
			WHERE id = 1`, now)
		return err
	})
}

// RecordSyncFailure updates the failure counters and last error columns.
func (s *Store) RecordSyncFailure(ctx context.Context, table, errMsg string) error {
	now := nowUTC()

	return execWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE _sync_metadata SET
				failed_syncs = failed_syncs + 1,
				last_error = ?,
				last_error_at = ?,
				updated_at = ?
			WHERE table_name = ?`,
			errMsg, now, now, table)
		if err != nil {
			return err
		}

		_, err = s.db.ExecContext(ctx, `
			UPDATE _cache_stats SET
				total_syncs = total_syncs + 1,
				failed_syncs = failed_syncs + 1,
				last_activity_at = ?
			WHERE id = 1`, now)
		return err
	})
}

// Checkpoint returns the stored incremental checkpoint for table, nil when
// none has been recorded.
func (s *Store) Checkpoint(ctx context.Context, table string) (*string, error) {
	m, err := s.GetMetadata(ctx, table)
	if err != nil {
		return nil, err
	}
	return m.LastSyncCheckpoint, nil
}

// ClearCatalogEntry removes the catalog rows and local data for table. This
// is the explicit clear of the registration lifecycle; it is never done
// implicitly except on schema change.
func (s *Store) ClearCatalogEntry(ctx context.Context, table string) error {
	if err := s.dropDataTable(ctx, table); err != nil {
		return err
	}
	return execWithRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DELETE FROM _sync_metadata WHERE table_name = ?", table); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM _field_mappings WHERE table_name = ?", table); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// HistoryEntry is one row of the append-only sync history.
type HistoryEntry struct {
	ID               int64   `db:"id"`
	TableName        string  `db:"table_name"`
	SyncType         string  `db:"sync_type"`
	StartedAt        string  `db:"started_at"`
	CompletedAt      *string `db:"completed_at"`
	DurationMS       *int64  `db:"duration_ms"`
	RowsFetched      int64   `db:"rows_fetched"`
	RowsInserted     int64   `db:"rows_inserted"`
	RowsUpdated      int64   `db:"rows_updated"`
	RowsDeleted      int64   `db:"rows_deleted"`
	ChunksProcessed  int64   `db:"chunks_processed"`
	Status           string  `db:"status"`
	ErrorMessage     *string `db:"error_message"`
	TriggeredBy      *string `db:"triggered_by"`
	CheckpointBefore *string `db:"checkpoint_before"`
	CheckpointAfter  *string `db:"checkpoint_after"`
}

// AppendHistory records one completed (or failed) run.
func (s *Store) AppendHistory(ctx context.Context, h HistoryEntry) error {
	return execWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO _sync_history (
				table_name, sync_type, started_at, completed_at, duration_ms,
				rows_fetched, rows_inserted, rows_updated, rows_deleted,
				chunks_processed, status, error_message, triggered_by,
				checkpoint_before, checkpoint_after
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.TableName, h.SyncType, h.StartedAt, h.CompletedAt, h.DurationMS,
			h.RowsFetched, h.RowsInserted, h.RowsUpdated, h.RowsDeleted,
			h.ChunksProcessed, h.Status, h.ErrorMessage, h.TriggeredBy,
			h.CheckpointBefore, h.CheckpointAfter)
		return err
	})
}

// RecentHistory returns the most recent runs for table, newest first.
func (s *Store) RecentHistory(ctx context.Context, table string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []HistoryEntry
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM _sync_history
		WHERE table_name = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, table, limit)
	return out, err
}

// PruneHistory keeps the newest keep rows of the history and deletes the
// rest.
func (s *Store) PruneHistory(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("history retention must not be negative, got %d", keep)
	}
	var deleted int64
	err := execWithRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM _sync_history WHERE id NOT IN (
				SELECT id FROM _sync_history ORDER BY started_at DESC, id DESC LIMIT ?
			)`, keep)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
