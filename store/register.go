package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/portasync/portasync/schema"
)

// Bookkeeping columns appended to every data table.
const (
	colSyncedAt    = "_synced_at"
	colSyncVersion = "_sync_version"
	colIsPartial   = "_is_partial"
)

// columnSpec is one resolved column of a data table. Field is nil for
// synthetic Field_<n> slots.
type columnSpec struct {
	Name  string
	Field *schema.FieldDefinition
}

// planColumns resolves one local column per position 0..TotalFields-1,
// deduplicating collisions by suffixing _2, _3, ...
func planColumns(ts *schema.TableSchema) []columnSpec {
	specs := make([]columnSpec, 0, ts.TotalFields)
	used := make(map[string]bool, ts.TotalFields)

	for p := 0; p < ts.TotalFields; p++ {
		f := ts.FieldByPosition(p)
		base := schema.SyntheticName(p)
		if f != nil {
			base = f.ColumnName()
		}

		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = true

		specs = append(specs, columnSpec{Name: name, Field: f})
	}
	return specs
}

// RegisterTable materializes the schema into the cache: it creates the data
// table (one column per position plus bookkeeping), its indexes and the
// public view, and writes the catalog rows.
//
// When the table was registered before with a different schema hash, the
// old data table is dropped and recreated and the sync state is reset: a
// schema change implies a full re-sync. Re-registering an identical schema
// is idempotent and preserves data, checkpoint and counters.
func (s *Store) RegisterTable(ctx context.Context, ts *schema.TableSchema) error {
	if ts.TableName == "" || ts.TotalFields <= 0 {
		return fmt.Errorf("schema for %q has no fields to register", ts.TableName)
	}

	hash := ts.Hash()
	existing, err := s.GetMetadata(ctx, ts.TableName)
	if err != nil && !errors.Is(err, ErrNotRegistered) {
		return err
	}

	schemaChanged := existing != nil && existing.SchemaHash != hash
	if schemaChanged {
		s.log.WithFields(logrus.Fields{
			"table":    ts.TableName,
			"old_hash": existing.SchemaHash[:12],
			"new_hash": hash[:12],
		}).Warn("Schema changed, dropping local data for full re-sync")

		if err := s.dropDataTable(ctx, ts.TableName); err != nil {
			return err
		}
	}

	specs := planColumns(ts)
	if err := s.createDataTable(ctx, ts, specs); err != nil {
		return err
	}
	if err := s.createDataIndexes(ctx, ts, specs); err != nil {
		return err
	}
	if err := s.createPublicView(ctx, ts, specs); err != nil {
		return err
	}
	if err := s.writeCatalogRows(ctx, ts, specs, hash, existing, schemaChanged); err != nil {
		return err
	}

	s.touchActivity(ctx)

	s.log.WithFields(logrus.Fields{
		"table":        ts.TableName,
		"total_fields": ts.TotalFields,
		"schema_hash":  hash[:12],
	}).Info("Table registered")

	return nil
}

func (s *Store) dropDataTable(ctx context.Context, table string) error {
	stmts := []string{
		fmt.Sprintf("DROP VIEW IF EXISTS [v_%s]", table),
		fmt.Sprintf("DROP TABLE IF EXISTS [%s]", table),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("dropping stale objects for %s: %w", table, err)
		}
	}
	return nil
}

func (s *Store) createDataTable(ctx context.Context, ts *schema.TableSchema, specs []columnSpec) error {
	idField := ts.IDField()

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS [%s] (", ts.TableName)

	for i, spec := range specs {
		if i > 0 {
			b.WriteString(", ")
		}
		if spec.Field == nil {
			fmt.Fprintf(&b, "[%s] TEXT NULL", spec.Name)
			continue
		}

		fmt.Fprintf(&b, "[%s] %s", spec.Name, spec.Field.Type.SQLiteType())
		if idField != nil && spec.Field.Position == idField.Position {
			b.WriteString(" PRIMARY KEY")
		} else {
			b.WriteString(" NULL")
		}
	}

	fmt.Fprintf(&b, ", [%s] TEXT NOT NULL", colSyncedAt)
	fmt.Fprintf(&b, ", [%s] INTEGER NOT NULL DEFAULT 1", colSyncVersion)
	fmt.Fprintf(&b, ", [%s] INTEGER NOT NULL DEFAULT 0", colIsPartial)
	b.WriteString(")")

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("creating data table %s: %w", ts.TableName, err)
	}
	return nil
}

func (s *Store) createDataIndexes(ctx context.Context, ts *schema.TableSchema, specs []columnSpec) error {
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS [idx_%s_synced_at] ON [%s] ([%s])",
			ts.TableName, ts.TableName, colSyncedAt),
	}

	cfg := ts.EffectiveConfig()
	if cfg.IncrementalField != "" {
		if col := localColumnFor(ts, specs, cfg.IncrementalField); col != "" {
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS [idx_%s_%s] ON [%s] ([%s])",
				ts.TableName, col, ts.TableName, col))
		}
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating indexes for %s: %w", ts.TableName, err)
		}
	}
	return nil
}

// localColumnFor maps a field name (by any of its names) onto the resolved
// local column.
func localColumnFor(ts *schema.TableSchema, specs []columnSpec, fieldName string) string {
	f := ts.FieldByName(fieldName)
	if f == nil {
		f = ts.FieldNamed(fieldName)
	}
	if f == nil {
		return ""
	}
	for _, spec := range specs {
		if spec.Field != nil && spec.Field.Position == f.Position {
			return spec.Name
		}
	}
	return ""
}

// createPublicView exposes the data columns under their remote/public
// names, hiding the bookkeeping columns.
func (s *Store) createPublicView(ctx context.Context, ts *schema.TableSchema, specs []columnSpec) error {
	var cols []string
	for _, spec := range specs {
		public := spec.Name
		if spec.Field != nil {
			public = spec.Field.PublicName()
		}
		if public == spec.Name {
			cols = append(cols, fmt.Sprintf("[%s]", spec.Name))
		} else {
			cols = append(cols, fmt.Sprintf("[%s] AS [%s]", spec.Name, public))
		}
	}

	stmts := []string{
		fmt.Sprintf("DROP VIEW IF EXISTS [v_%s]", ts.TableName),
		fmt.Sprintf("CREATE VIEW [v_%s] AS SELECT %s FROM [%s]",
			ts.TableName, strings.Join(cols, ", "), ts.TableName),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating view for %s: %w", ts.TableName, err)
		}
	}
	return nil
}

func (s *Store) writeCatalogRows(ctx context.Context, ts *schema.TableSchema, specs []columnSpec, hash string, existing *SyncMetadata, schemaChanged bool) error {
	cfg := ts.EffectiveConfig()
	now := nowUTC()

	var rowCount int64
	var minID, maxID *int64
	if ts.Metadata != nil {
		rowCount = ts.Metadata.RowCount
		if ts.Metadata.MinID != 0 || ts.Metadata.MaxID != 0 {
			minID, maxID = &ts.Metadata.MinID, &ts.Metadata.MaxID
		}
	}

	var whereClause, incrField *string
	if cfg.Where != "" {
		whereClause = &cfg.Where
	}
	if cfg.IncrementalField != "" {
		incrField = &cfg.IncrementalField
	}

	schemaVersion := int64(1)
	if existing != nil {
		schemaVersion = existing.SchemaVersion
		if schemaChanged {
			schemaVersion++
		}
	}

	return execWithRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if schemaChanged {
			// Reset sync state: the mirror starts over under the new shape.
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM _sync_metadata WHERE table_name = ?", ts.TableName); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO _sync_metadata (
				table_name, strategy, ttl, chunk_size, where_clause, order_by,
				incremental_field, schema_hash, schema_version, total_fields,
				row_count, min_id, max_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (table_name) DO UPDATE SET
				strategy = excluded.strategy,
				ttl = excluded.ttl,
				chunk_size = excluded.chunk_size,
				where_clause = excluded.where_clause,
				order_by = excluded.order_by,
				incremental_field = excluded.incremental_field,
				schema_hash = excluded.schema_hash,
				schema_version = excluded.schema_version,
				total_fields = excluded.total_fields,
				row_count = excluded.row_count,
				min_id = COALESCE(excluded.min_id, _sync_metadata.min_id),
				max_id = COALESCE(excluded.max_id, _sync_metadata.max_id),
				updated_at = excluded.updated_at`,
			ts.TableName, string(cfg.Strategy), cfg.TTL, cfg.ChunkSize, whereClause,
			cfg.OrderBy, incrField, hash, schemaVersion, ts.TotalFields,
			rowCount, minID, maxID, now, now)
		if err != nil {
			return fmt.Errorf("writing sync metadata for %s: %w", ts.TableName, err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM _field_mappings WHERE table_name = ?", ts.TableName); err != nil {
			return err
		}

		idField := ts.IDField()
		for _, spec := range specs {
			if spec.Field == nil {
				continue
			}
			f := spec.Field

			isPK := idField != nil && f.Position == idField.Position
			isIncr := cfg.IncrementalField != "" &&
				strings.EqualFold(f.Name, cfg.IncrementalField)
			nullable := 1
			if f.Constraints != nil && f.Constraints.Nullable != nil && !*f.Constraints.Nullable {
				nullable = 0
			}

			var desc *string
			if f.Description != "" {
				desc = &f.Description
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO _field_mappings (
					table_name, position, field_name, local_column, field_type,
					is_primary_key, is_incremental_field, is_nullable, description
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				ts.TableName, f.Position, f.Name, spec.Name, string(f.Type),
				boolToInt(isPK), boolToInt(isIncr), nullable, desc)
			if err != nil {
				return fmt.Errorf("writing field mapping for %s position %d: %w", ts.TableName, f.Position, err)
			}
		}

		return tx.Commit()
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FieldMapping is one catalog row describing how a remote position maps to
// a local column.
type FieldMapping struct {
	TableName          string  `db:"table_name"`
	Position           int     `db:"position"`
	FieldName          string  `db:"field_name"`
	LocalColumn        string  `db:"local_column"`
	FieldType          string  `db:"field_type"`
	IsPrimaryKey       bool    `db:"is_primary_key"`
	IsIncrementalField bool    `db:"is_incremental_field"`
	IsNullable         bool    `db:"is_nullable"`
	Description        *string `db:"description"`
}

// FieldMappings returns the registered mapping rows for table in position
// order.
func (s *Store) FieldMappings(ctx context.Context, table string) ([]FieldMapping, error) {
	var out []FieldMapping
	err := s.db.SelectContext(ctx, &out,
		"SELECT * FROM _field_mappings WHERE table_name = ? ORDER BY position", table)
	return out, err
}
