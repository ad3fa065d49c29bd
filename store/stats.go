package store

import (
	"context"
	"os"
)

// CacheStats is the singleton stats row plus figures computed at read time.
type CacheStats struct {
	TotalTables         int64   `db:"total_tables"`
	TotalRows           int64   `db:"total_rows"`
	DatabaseSizeBytes   int64   `db:"database_size_bytes"`
	TotalSyncs          int64   `db:"total_syncs"`
	SuccessfulSyncs     int64   `db:"successful_syncs"`
	FailedSyncs         int64   `db:"failed_syncs"`
	LastActivityAt      *string `db:"last_activity_at"`
	InitializedAt       string  `db:"initialized_at"`
	LastVacuumAt        *string `db:"last_vacuum_at"`
	LastAnalyzeAt       *string `db:"last_analyze_at"`
	CacheVersion        string  `db:"cache_version"`
	SchemaFormatVersion int64   `db:"schema_format_version"`
}

// Stats returns the stats singleton with total_tables, total_rows and
// database_size_bytes recomputed from the catalog and the file on disk.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	var st CacheStats
	if err := s.db.GetContext(ctx, &st, `
		SELECT total_tables, total_rows, database_size_bytes,
			total_syncs, successful_syncs, failed_syncs,
			last_activity_at, initialized_at, last_vacuum_at,
			last_analyze_at, cache_version, schema_format_version
		FROM _cache_stats WHERE id = 1`); err != nil {
		return nil, err
	}

	if err := s.db.GetContext(ctx, &st.TotalTables,
		"SELECT COUNT(*) FROM _sync_metadata"); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &st.TotalRows,
		"SELECT COALESCE(SUM(local_row_count), 0) FROM _sync_metadata"); err != nil {
		return nil, err
	}

	if s.path != ":memory:" {
		if fi, err := os.Stat(s.path); err == nil {
			st.DatabaseSizeBytes = fi.Size()
		}
	}

	return &st, nil
}

// Vacuum compacts the database file and records when it happened.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE _cache_stats SET last_vacuum_at = ? WHERE id = 1", nowUTC())
	return err
}

// Analyze refreshes the query planner statistics and records when it
// happened.
func (s *Store) Analyze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE _cache_stats SET last_analyze_at = ? WHERE id = 1", nowUTC())
	return err
}
