package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash computes a canonical digest of the schema's identity: table name,
// per-position (name, type, position) tuples and the projected sync config
// fields that change what the mirror contains. Field insertion order does
// not affect the result. The catalog compares hashes at registration to
// detect schema change.
func (ts *TableSchema) Hash() string {
	parts := make([]string, 0, len(ts.Fields)+2)
	parts = append(parts, "table="+ts.TableName)

	positions := make([]int, 0, len(ts.Fields))
	for p := range ts.Fields {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	for _, p := range positions {
		f := ts.Fields[p]
		parts = append(parts, fmt.Sprintf("field=%d:%s:%s", p, f.Name, f.Type))
	}

	if c := ts.SyncConfig; c != nil {
		proj := []string{
			"strategy=" + string(c.Strategy),
			"where=" + c.Where,
			"order_by=" + c.OrderBy,
			"incremental_field=" + c.IncrementalField,
		}
		inc := append([]string(nil), c.IncludeFields...)
		exc := append([]string(nil), c.ExcludeFields...)
		sort.Strings(inc)
		sort.Strings(exc)
		proj = append(proj, "include="+strings.Join(inc, ","), "exclude="+strings.Join(exc, ","))
		parts = append(parts, proj...)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(sum[:])
}
