package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
)

// ConflictMode selects the INSERT conflict clause for a bulk chunk write.
type ConflictMode string

const (
	ConflictFail    ConflictMode = "FAIL"
	ConflictReplace ConflictMode = "REPLACE"
	ConflictIgnore  ConflictMode = "IGNORE"
)

// SQLite limits bound variables per statement; large chunks are split into
// sub-statements under this budget. 32766 is the modern default, kept well
// under for safety with older builds.
const maxBindVars = 30000

// BulkInsert writes one chunk of positional rows into the data table in a
// single transaction. Every column of every position is bound; short rows
// pad with NULL. Bookkeeping columns are stamped with the chunk's write
// time, version 1 and a clear partial flag. A failure rolls back the whole
// chunk, so no committed row ever has a missing _synced_at.
func (s *Store) BulkInsert(ctx context.Context, ts *schema.TableSchema, rows []jsonsql.Row, mode ConflictMode) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if mode == "" {
		mode = ConflictFail
	}

	specs := planColumns(ts)
	colNames := make([]string, 0, len(specs)+3)
	for _, spec := range specs {
		colNames = append(colNames, fmt.Sprintf("[%s]", spec.Name))
	}
	colNames = append(colNames,
		fmt.Sprintf("[%s]", colSyncedAt),
		fmt.Sprintf("[%s]", colSyncVersion),
		fmt.Sprintf("[%s]", colIsPartial))

	width := len(specs) + 3
	rowsPerStmt := maxBindVars / width
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	syncedAt := nowUTC()
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	prefix := fmt.Sprintf("INSERT OR %s INTO [%s] (%s) VALUES ",
		mode, ts.TableName, strings.Join(colNames, ", "))

	var written int64
	err := execWithRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		written = 0
		for start := 0; start < len(rows); start += rowsPerStmt {
			end := start + rowsPerStmt
			if end > len(rows) {
				end = len(rows)
			}
			batch := rows[start:end]

			args := make([]any, 0, len(batch)*width)
			for _, row := range batch {
				for p, spec := range specs {
					if p < len(row) {
						args = append(args, bindValue(spec.Field, row[p]))
					} else {
						args = append(args, nil)
					}
				}
				args = append(args, syncedAt, 1, 0)
			}

			stmt := prefix + strings.TrimSuffix(strings.Repeat(placeholder+", ", len(batch)), ", ")
			res, err := tx.ExecContext(ctx, stmt, args...)
			if err != nil {
				return fmt.Errorf("bulk insert into %s: %w", ts.TableName, err)
			}
			n, _ := res.RowsAffected()
			written += n
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// UpsertRows writes rows one by one, updating existing rows by id and
// inserting the rest, inside a single transaction. Updates bump
// _sync_version. Returns (inserted, updated) counts.
func (s *Store) UpsertRows(ctx context.Context, ts *schema.TableSchema, rows []jsonsql.Row) (int64, int64, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	idField := ts.IDField()
	if idField == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoPrimaryKey, ts.TableName)
	}

	specs := planColumns(ts)
	idCol := specs[idField.Position].Name
	syncedAt := nowUTC()

	// Non-id data columns in position order.
	var setCols []string
	for p, spec := range specs {
		if p == idField.Position {
			continue
		}
		setCols = append(setCols, spec.Name)
	}

	updateStmt := fmt.Sprintf("UPDATE [%s] SET ", ts.TableName)
	for _, c := range setCols {
		updateStmt += fmt.Sprintf("[%s] = ?, ", c)
	}
	updateStmt += fmt.Sprintf("[%s] = ?, [%s] = [%s] + 1, [%s] = 0 WHERE [%s] = ?",
		colSyncedAt, colSyncVersion, colSyncVersion, colIsPartial, idCol)

	insertCols := make([]string, 0, len(specs)+3)
	for _, spec := range specs {
		insertCols = append(insertCols, fmt.Sprintf("[%s]", spec.Name))
	}
	insertCols = append(insertCols,
		fmt.Sprintf("[%s]", colSyncedAt),
		fmt.Sprintf("[%s]", colSyncVersion),
		fmt.Sprintf("[%s]", colIsPartial))
	insertStmt := fmt.Sprintf("INSERT INTO [%s] (%s) VALUES (%s)",
		ts.TableName, strings.Join(insertCols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(specs)+3), ", "))

	existsStmt := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM [%s] WHERE [%s] = ?)", ts.TableName, idCol)

	var inserted, updated int64
	err := execWithRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		inserted, updated = 0, 0
		for _, row := range rows {
			if idField.Position >= len(row) {
				return fmt.Errorf("row for %s is missing the id position %d", ts.TableName, idField.Position)
			}
			idVal := bindValue(idField, row[idField.Position])

			var exists bool
			if err := tx.GetContext(ctx, &exists, existsStmt, idVal); err != nil {
				return err
			}

			if exists {
				args := make([]any, 0, len(setCols)+2)
				for p, spec := range specs {
					if p == idField.Position {
						continue
					}
					if p < len(row) {
						args = append(args, bindValue(spec.Field, row[p]))
					} else {
						args = append(args, nil)
					}
				}
				args = append(args, syncedAt, idVal)
				if _, err := tx.ExecContext(ctx, updateStmt, args...); err != nil {
					return fmt.Errorf("upsert update in %s: %w", ts.TableName, err)
				}
				updated++
			} else {
				args := make([]any, 0, len(specs)+3)
				for p, spec := range specs {
					if p < len(row) {
						args = append(args, bindValue(spec.Field, row[p]))
					} else {
						args = append(args, nil)
					}
				}
				args = append(args, syncedAt, 1, 0)
				if _, err := tx.ExecContext(ctx, insertStmt, args...); err != nil {
					return fmt.Errorf("upsert insert in %s: %w", ts.TableName, err)
				}
				inserted++
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// ClearTable deletes every row of the data table, returning the
// pre-deletion count.
func (s *Store) ClearTable(ctx context.Context, table string) (int64, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, TableNotFoundErr(table)
	}

	var count int64
	err = execWithRetry(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if err := tx.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM [%s]", table)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM [%s]", table)); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DataRowCount returns the number of rows in table's data table.
func (s *Store) DataRowCount(ctx context.Context, table string) (int64, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, TableNotFoundErr(table)
	}
	var n int64
	err = s.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM [%s]", table))
	return n, err
}

// bindValue normalizes a remote value for SQLite binding after applying
// the field's transformer. json.Number becomes int64 or float64; nested
// structures become their JSON text.
func bindValue(f *schema.FieldDefinition, v any) any {
	if f != nil {
		v = f.Transform(v)
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if fl, err := n.Float64(); err == nil {
			return fl
		}
		return n.String()
	case map[string]any, []any:
		if data, err := json.Marshal(n); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", n)
	}
	return v
}
