package store

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func usersSchema(t *testing.T) *schema.TableSchema {
	t.Helper()
	id, err := schema.NewField(0, "id", schema.TypeInteger)
	require.NoError(t, err)
	name, err := schema.NewField(1, "name", schema.TypeString)
	require.NoError(t, err)
	email, err := schema.NewField(2, "email", schema.TypeString)
	require.NoError(t, err)
	email.Alias = "contact_email"
	updated, err := schema.NewField(3, "updated_at", schema.TypeDatetime)
	require.NoError(t, err)

	ts, err := schema.NewTableSchema("users", []*schema.FieldDefinition{id, name, email, updated})
	require.NoError(t, err)
	ts.SyncConfig = &schema.SyncConfig{
		Strategy:         schema.StrategyIncremental,
		IncrementalField: "updated_at",
		IncrementalMode:  true,
		TTL:              3600,
		ChunkSize:        2,
	}
	return ts
}

func TestOpenCreatesCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheVersion, st.CacheVersion)
	assert.Equal(t, int64(SchemaFormatVersion), st.SchemaFormatVersion)
	assert.Zero(t, st.TotalTables)
}

func TestOpenOnDisk(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	s, err := Open(path, log)
	require.NoError(t, err)
	defer s.Close()

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Greater(t, st.DatabaseSizeBytes, int64(0))
}

func TestRegisterTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)

	require.NoError(t, s.RegisterTable(ctx, ts))

	m, err := s.GetMetadata(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, "incremental", m.Strategy)
	assert.Equal(t, int64(3600), m.TTL)
	assert.Equal(t, int64(4), m.TotalFields)
	assert.Equal(t, ts.Hash(), m.SchemaHash)
	assert.Equal(t, int64(1), m.SchemaVersion)
	require.NotNil(t, m.IncrementalField)
	assert.Equal(t, "updated_at", *m.IncrementalField)

	exists, err := s.tableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, exists)

	fm, err := s.FieldMappings(ctx, "users")
	require.NoError(t, err)
	require.Len(t, fm, 4)
	assert.Equal(t, "id", fm[0].FieldName)
	assert.True(t, fm[0].IsPrimaryKey)
	assert.Equal(t, "updated_at", fm[3].FieldName)
	assert.True(t, fm[3].IsIncrementalField)
}

func TestRegisterTableIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)

	require.NoError(t, s.RegisterTable(ctx, ts))
	_, err := s.BulkInsert(ctx, ts, []jsonsql.Row{{int64(1), "ada", "ada@example.com", "2026-01-01T00:00:00Z"}}, ConflictReplace)
	require.NoError(t, err)

	require.NoError(t, s.RegisterTable(ctx, ts))

	n, err := s.DataRowCount(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "re-registering the same schema keeps the data")

	m, err := s.GetMetadata(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.SchemaVersion)
}

func TestRegisterTableSchemaChange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)

	require.NoError(t, s.RegisterTable(ctx, ts))
	_, err := s.BulkInsert(ctx, ts, []jsonsql.Row{{int64(1), "ada", "a@x", "2026-01-01T00:00:00Z"}}, ConflictReplace)
	require.NoError(t, err)

	extra, err := schema.NewField(4, "deleted_at", schema.TypeDatetime)
	require.NoError(t, err)
	ts2 := usersSchema(t)
	ts2.Fields[4] = extra
	ts2.TotalFields = 5

	require.NoError(t, s.RegisterTable(ctx, ts2))

	n, err := s.DataRowCount(ctx, "users")
	require.NoError(t, err)
	assert.Zero(t, n, "schema change drops the local copy")

	m, err := s.GetMetadata(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, ts2.Hash(), m.SchemaHash)
	assert.Equal(t, int64(2), m.SchemaVersion)
	assert.Nil(t, m.LastSyncAt, "sync state resets on schema change")
}

func TestPlanColumnsDeduplicates(t *testing.T) {
	a, err := schema.NewField(0, "value", schema.TypeString)
	require.NoError(t, err)
	b, err := schema.NewField(1, "other", schema.TypeString)
	require.NoError(t, err)
	b.LocalName = "value"
	c, err := schema.NewField(3, "third", schema.TypeString)
	require.NoError(t, err)
	c.LocalName = "value"

	ts, err := schema.NewTableSchema("t", []*schema.FieldDefinition{a, b, c})
	require.NoError(t, err)

	specs := planColumns(ts)
	require.Len(t, specs, 4)
	assert.Equal(t, "value", specs[0].Name)
	assert.Equal(t, "value_2", specs[1].Name)
	assert.Equal(t, "Field_2", specs[2].Name)
	assert.Equal(t, "value_3", specs[3].Name)
}

func TestBulkInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	rows := []jsonsql.Row{
		{int64(1), "ada", "ada@example.com", "2026-01-01T00:00:00Z"},
		{int64(2), "grace", "grace@example.com", "2026-01-02T00:00:00Z"},
		{int64(3), "edsger"}, // short row pads with NULL
	}
	n, err := s.BulkInsert(ctx, ts, rows, ConflictReplace)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	out, err := s.ExecuteQuery(ctx, "users",
		"SELECT id, name, email, _synced_at, _sync_version, _is_partial FROM [users] ORDER BY id")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "ada", out[0]["name"])
	assert.EqualValues(t, 1, out[0]["_sync_version"])
	assert.EqualValues(t, 0, out[0]["_is_partial"])
	assert.NotEmpty(t, out[0]["_synced_at"])
	assert.Nil(t, out[2]["email"])
}

func TestBulkInsertReplaceOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	_, err := s.BulkInsert(ctx, ts, []jsonsql.Row{{int64(1), "ada", "a@x", "2026-01-01T00:00:00Z"}}, ConflictReplace)
	require.NoError(t, err)
	_, err = s.BulkInsert(ctx, ts, []jsonsql.Row{{int64(1), "ada lovelace", "a@x", "2026-01-02T00:00:00Z"}}, ConflictReplace)
	require.NoError(t, err)

	n, err := s.DataRowCount(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := s.ExecuteQuery(ctx, "users", "SELECT name FROM [users] WHERE id = 1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ada lovelace", out[0]["name"])
}

func TestUpsertRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	ins, upd, err := s.UpsertRows(ctx, ts, []jsonsql.Row{
		{int64(1), "ada", "a@x", "2026-01-01T00:00:00Z"},
		{int64(2), "grace", "g@x", "2026-01-01T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), ins)
	assert.Zero(t, upd)

	ins, upd, err = s.UpsertRows(ctx, ts, []jsonsql.Row{
		{int64(2), "grace hopper", "g@x", "2026-01-03T00:00:00Z"},
		{int64(3), "edsger", "e@x", "2026-01-03T00:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), ins)
	assert.Equal(t, int64(1), upd)

	out, err := s.ExecuteQuery(ctx, "users",
		"SELECT id, name, _sync_version FROM [users] ORDER BY id")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "grace hopper", out[1]["name"])
	assert.EqualValues(t, 2, out[1]["_sync_version"], "updates bump _sync_version")
	assert.EqualValues(t, 1, out[2]["_sync_version"])
}

func TestUpsertRowsRequiresID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f, err := schema.NewField(0, "label", schema.TypeString)
	require.NoError(t, err)
	ts, err := schema.NewTableSchema("labels", []*schema.FieldDefinition{f})
	require.NoError(t, err)
	require.NoError(t, s.RegisterTable(ctx, ts))

	_, _, err = s.UpsertRows(ctx, ts, []jsonsql.Row{{"a"}})
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestClearTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	_, err := s.BulkInsert(ctx, ts, []jsonsql.Row{
		{int64(1), "a", "a@x", "2026-01-01T00:00:00Z"},
		{int64(2), "b", "b@x", "2026-01-01T00:00:00Z"},
	}, ConflictReplace)
	require.NoError(t, err)

	n, err := s.ClearTable(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.DataRowCount(ctx, "users")
	require.NoError(t, err)
	assert.Zero(t, left)

	_, err = s.ClearTable(ctx, "nope")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestPublicView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	_, err := s.BulkInsert(ctx, ts, []jsonsql.Row{{int64(1), "ada", "ada@example.com", "2026-01-01T00:00:00Z"}}, ConflictReplace)
	require.NoError(t, err)

	out, err := s.ExecuteQuery(ctx, "users", "SELECT * FROM [v_users]")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ada@example.com", out[0]["contact_email"], "view exposes the alias")
	assert.NotContains(t, out[0], "_synced_at", "view hides bookkeeping columns")
}

func TestFreshnessLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)

	stale, err := s.IsStale(ctx, "users")
	require.NoError(t, err)
	assert.True(t, stale, "unregistered tables are stale")

	require.NoError(t, s.RegisterTable(ctx, ts))

	stale, err = s.IsStale(ctx, "users")
	require.NoError(t, err)
	assert.True(t, stale, "never-synced tables are stale")

	cp := "2026-01-05T00:00:00Z"
	maxID := int64(7)
	err = s.RecordSyncSuccess(ctx, "users", SyncOutcome{
		TTLSeconds:    3600,
		RowsFetched:   10,
		RowsInserted:  10,
		LocalRowCount: 10,
		DurationMS:    42,
		MaxID:         &maxID,
		Checkpoint:    &cp,
	})
	require.NoError(t, err)

	stale, err = s.IsStale(ctx, "users")
	require.NoError(t, err)
	assert.False(t, stale, "fresh inside the ttl window")

	m, err := s.GetMetadata(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.TotalSyncs)
	assert.Equal(t, int64(10), m.LocalRowCount)
	require.NotNil(t, m.LastSyncCheckpoint)
	assert.Equal(t, cp, *m.LastSyncCheckpoint)
	require.NotNil(t, m.MaxID)
	assert.Equal(t, int64(7), *m.MaxID)

	got, err := s.Checkpoint(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp, *got)

	// A run that reports no checkpoint keeps the previous one.
	err = s.RecordSyncSuccess(ctx, "users", SyncOutcome{TTLSeconds: 3600, LocalRowCount: 10})
	require.NoError(t, err)
	got, err = s.Checkpoint(ctx, "users")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp, *got)
}

func TestRecordSyncFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	require.NoError(t, s.RecordSyncFailure(ctx, "users", "remote unreachable"))

	m, err := s.GetMetadata(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.FailedSyncs)
	require.NotNil(t, m.LastError)
	assert.Equal(t, "remote unreachable", *m.LastError)
	assert.NotNil(t, m.LastErrorAt)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.FailedSyncs)
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		dur := int64(10 + i)
		require.NoError(t, s.AppendHistory(ctx, HistoryEntry{
			TableName:   "users",
			SyncType:    "full",
			StartedAt:   nowUTC(),
			DurationMS:  &dur,
			RowsFetched: int64(i),
			Status:      "success",
		}))
	}

	hist, err := s.RecentHistory(ctx, "users", 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, int64(4), hist[0].RowsFetched, "newest first")

	deleted, err := s.PruneHistory(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	hist, err = s.RecentHistory(ctx, "users", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	_, err = s.PruneHistory(ctx, -1)
	assert.Error(t, err)
}

func TestClearCatalogEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	require.NoError(t, s.ClearCatalogEntry(ctx, "users"))

	_, err := s.GetMetadata(ctx, "users")
	assert.ErrorIs(t, err, ErrNotRegistered)

	exists, err := s.tableExists(ctx, "users")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStatsAggregates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))
	require.NoError(t, s.RecordSyncSuccess(ctx, "users", SyncOutcome{TTLSeconds: 60, LocalRowCount: 25}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.TotalTables)
	assert.Equal(t, int64(25), st.TotalRows)
	assert.Equal(t, int64(1), st.SuccessfulSyncs)
}

func TestVacuumAnalyze(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Vacuum(ctx))
	require.NoError(t, s.Analyze(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.NotNil(t, st.LastVacuumAt)
	assert.NotNil(t, st.LastAnalyzeAt)
}

func TestExecuteQueryMissingTable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ExecuteQuery(context.Background(), "ghost", "SELECT 1")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestSyncStatusView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := usersSchema(t)
	require.NoError(t, s.RegisterTable(ctx, ts))

	var status string
	require.NoError(t, s.db.GetContext(ctx, &status,
		"SELECT cache_status FROM v_sync_status WHERE table_name = 'users'"))
	assert.Equal(t, "unknown", status)

	require.NoError(t, s.RecordSyncSuccess(ctx, "users", SyncOutcome{TTLSeconds: 3600}))
	require.NoError(t, s.db.GetContext(ctx, &status,
		"SELECT cache_status FROM v_sync_status WHERE table_name = 'users'"))
	assert.Equal(t, "fresh", status)
}
