// Package store persists the sync catalog and the mirrored data tables in a
// single SQLite database. The catalog records, per mirrored table, its
// schema hash, field mapping, checkpoint, freshness deadline and sync
// history; one dynamically created data table per mirrored table holds the
// rows plus per-row sync bookkeeping columns.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Catalog layout identity. Opening a database whose schema_format_version
// is newer than this fails rather than guessing.
const (
	CacheVersion        = "1.0"
	SchemaFormatVersion = 1
)

// timeLayout is the fixed-width UTC form all catalog timestamps use, so
// string comparison orders the same way time does.
const timeLayout = "2006-01-02T15:04:05Z"

func nowUTC() string {
	return time.Now().UTC().Format(timeLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

const catalogDDL = `
CREATE TABLE IF NOT EXISTS _sync_metadata (
	table_name            TEXT PRIMARY KEY,
	strategy              TEXT NOT NULL,
	ttl                   INTEGER NOT NULL DEFAULT 0,
	chunk_size            INTEGER NOT NULL DEFAULT 1000,
	where_clause          TEXT,
	order_by              TEXT NOT NULL DEFAULT 'id',
	incremental_field     TEXT,
	schema_hash           TEXT NOT NULL,
	schema_version        INTEGER NOT NULL DEFAULT 1,
	total_fields          INTEGER NOT NULL,
	row_count             INTEGER NOT NULL DEFAULT 0,
	local_row_count       INTEGER NOT NULL DEFAULT 0,
	min_id                INTEGER,
	max_id                INTEGER,
	last_sync_at          TEXT,
	next_sync_at          TEXT,
	last_sync_checkpoint  TEXT,
	last_sync_duration_ms INTEGER,
	last_sync_rows        INTEGER,
	total_syncs           INTEGER NOT NULL DEFAULT 0,
	failed_syncs          INTEGER NOT NULL DEFAULT 0,
	last_error            TEXT,
	last_error_at         TEXT,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS _field_mappings (
	table_name           TEXT NOT NULL,
	position             INTEGER NOT NULL,
	field_name           TEXT NOT NULL,
	local_column         TEXT NOT NULL,
	field_type           TEXT NOT NULL,
	is_primary_key       INTEGER NOT NULL DEFAULT 0,
	is_incremental_field INTEGER NOT NULL DEFAULT 0,
	is_nullable          INTEGER NOT NULL DEFAULT 1,
	description          TEXT,
	PRIMARY KEY (table_name, position)
);

CREATE TABLE IF NOT EXISTS _sync_history (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	table_name        TEXT NOT NULL,
	sync_type         TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	completed_at      TEXT,
	duration_ms       INTEGER,
	rows_fetched      INTEGER NOT NULL DEFAULT 0,
	rows_inserted     INTEGER NOT NULL DEFAULT 0,
	rows_updated      INTEGER NOT NULL DEFAULT 0,
	rows_deleted      INTEGER NOT NULL DEFAULT 0,
	chunks_processed  INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	error_message     TEXT,
	triggered_by      TEXT,
	checkpoint_before TEXT,
	checkpoint_after  TEXT
);

CREATE TABLE IF NOT EXISTS _cache_stats (
	id                    INTEGER PRIMARY KEY CHECK (id = 1),
	total_tables          INTEGER NOT NULL DEFAULT 0,
	total_rows            INTEGER NOT NULL DEFAULT 0,
	database_size_bytes   INTEGER NOT NULL DEFAULT 0,
	total_syncs           INTEGER NOT NULL DEFAULT 0,
	successful_syncs      INTEGER NOT NULL DEFAULT 0,
	failed_syncs          INTEGER NOT NULL DEFAULT 0,
	last_activity_at      TEXT,
	initialized_at        TEXT NOT NULL,
	last_vacuum_at        TEXT,
	last_analyze_at       TEXT,
	cache_version         TEXT NOT NULL,
	schema_format_version INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_metadata_next_sync ON _sync_metadata (next_sync_at);
CREATE INDEX IF NOT EXISTS idx_sync_metadata_strategy ON _sync_metadata (strategy);
CREATE INDEX IF NOT EXISTS idx_sync_history_table ON _sync_history (table_name, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sync_history_status ON _sync_history (status);
`

const catalogViews = `
CREATE VIEW IF NOT EXISTS v_sync_status AS
SELECT
	m.table_name,
	m.strategy,
	m.row_count,
	m.local_row_count,
	m.last_sync_at,
	m.next_sync_at,
	m.total_syncs,
	m.failed_syncs,
	m.last_error,
	CASE
		WHEN m.last_sync_at IS NULL THEN 'unknown'
		WHEN m.next_sync_at IS NULL THEN 'stale'
		WHEN m.next_sync_at > strftime('%Y-%m-%dT%H:%M:%SZ', 'now') THEN 'fresh'
		ELSE 'stale'
	END AS cache_status
FROM _sync_metadata m;

CREATE VIEW IF NOT EXISTS v_recent_sync_history AS
SELECT * FROM _sync_history
ORDER BY started_at DESC, id DESC
LIMIT 100;
`

// Store is a handle on the cache database. A single Store owns the file;
// writes are serialized through one connection (WAL allows concurrent
// readers).
type Store struct {
	db   *sqlx.DB
	log  *logrus.Logger
	path string
}

// Open creates or opens the cache database at path, applies the durability
// and concurrency pragmas, creates the catalog tables and views, and
// initializes the stats singleton. Parent directories are created as
// needed. path may be ":memory:" for tests.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating cache directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// One writer at a time; WAL readers go through the same pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging cache database: %w", err)
	}

	s := &Store{db: db, log: log, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"path":           path,
		"cache_version":  CacheVersion,
		"format_version": SchemaFormatVersion,
	}).Info("Cache database opened")

	return s, nil
}

func (s *Store) initialize() error {
	pragmas := []string{
		"PRAGMA page_size = 4096",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("applying %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(catalogDDL); err != nil {
		return fmt.Errorf("creating catalog tables: %w", err)
	}
	if _, err := s.db.Exec(catalogViews); err != nil {
		return fmt.Errorf("creating catalog views: %w", err)
	}

	var version int
	err := s.db.Get(&version, "SELECT schema_format_version FROM _cache_stats WHERE id = 1")
	switch {
	case err == nil:
		if version > SchemaFormatVersion {
			return fmt.Errorf("%w: found %d, supported %d", ErrUnsupportedCatalog, version, SchemaFormatVersion)
		}
	default:
		_, err = s.db.Exec(`
			INSERT INTO _cache_stats (id, initialized_at, cache_version, schema_format_version)
			VALUES (1, ?, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			nowUTC(), CacheVersion, SchemaFormatVersion)
		if err != nil {
			return fmt.Errorf("initializing cache stats: %w", err)
		}
	}

	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path this store was opened on.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle for the local query surface. Callers
// must not write to catalog tables through it.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// touchActivity stamps last_activity_at on the stats singleton.
func (s *Store) touchActivity(ctx context.Context) {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE _cache_stats SET last_activity_at = ? WHERE id = 1", nowUTC()); err != nil {
		s.log.WithError(err).Warn("Failed to update cache activity timestamp")
	}
}

// tableExists reports whether a data table with that exact name exists.
func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
