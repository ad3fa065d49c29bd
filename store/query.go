package store

import (
	"context"
)

// ExecuteQuery runs a read query against a mirrored table and returns the
// rows as column-name maps. The table must have been registered and
// materialized; the SQL itself is the caller's and may join the public view
// or use the bookkeeping columns.
func (s *Store) ExecuteQuery(ctx context.Context, table, query string, params ...any) ([]map[string]any, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, TableNotFoundErr(table)
	}

	rows, err := s.db.QueryxContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		// go-sqlite3 returns TEXT as []byte through MapScan.
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.touchActivity(ctx)
	return out, nil
}
