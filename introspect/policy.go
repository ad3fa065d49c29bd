package introspect

import (
	"fmt"
	"strings"

	"github.com/portasync/portasync/schema"
)

// Incremental candidates, checked case-insensitively against DATETIME
// fields.
var incrementalCandidates = []string{"updated_at", "modified_at", "update_time"}

// defaultPolicy derives a sync policy from the table's shape and observed
// size. rowCount is -1 when metadata was unavailable; in that case the
// small-table defaults apply and no limit is set.
func defaultPolicy(ts *schema.TableSchema, rowCount int64) *schema.SyncConfig {
	cfg := schema.DefaultSyncConfig()
	cfg.AutoSync = true
	cfg.TTL = 3600

	switch {
	case rowCount < 0:
		// Shape-only policy, size unknown.
	case rowCount < 1000:
		cfg.ChunkSize = int(rowCount)
		if cfg.ChunkSize < 100 {
			cfg.ChunkSize = 100
		}
	case rowCount < 100_000:
		cfg.ChunkSize = 5000
		cfg.TTL = 1800
	default:
		cfg.Strategy = schema.StrategyIncremental
		cfg.ChunkSize = 10_000
		cfg.AutoSync = false
		cfg.TTL = 600
	}

	var clauses []string
	for _, f := range ts.OrderedFields() {
		lower := strings.ToLower(f.Name)
		switch {
		case lower == "deleted_at":
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", f.Name))
		case f.Type == schema.TypeBoolean && (lower == "disabled" || lower == "archived"):
			clauses = append(clauses, fmt.Sprintf("%s = false", f.Name))
		case f.Type == schema.TypeBoolean && lower == "active":
			clauses = append(clauses, fmt.Sprintf("%s = true", f.Name))
		}
	}
	cfg.Where = strings.Join(clauses, " AND ")

	if rowCount > 10_000 {
		if f := incrementalField(ts); f != nil {
			cfg.Strategy = schema.StrategyIncremental
			cfg.IncrementalMode = true
			cfg.IncrementalField = f.Name
		}
	}

	if rowCount > 0 {
		cfg.Limit = int(2 * rowCount)
		// A limit below the chunk size never validates; the cap is only a
		// runaway guard, so widen it instead of shrinking the chunk.
		if cfg.Limit < cfg.ChunkSize {
			cfg.Limit = cfg.ChunkSize
		}
	}

	return cfg
}

// incrementalField finds a DATETIME field usable as an incremental cursor.
func incrementalField(ts *schema.TableSchema) *schema.FieldDefinition {
	for _, candidate := range incrementalCandidates {
		for _, f := range ts.OrderedFields() {
			if f.Type == schema.TypeDatetime && strings.EqualFold(f.Name, candidate) {
				return f
			}
		}
	}
	return nil
}
