package schema

import "time"

// Range is a min/max pair observed on a remote column.
type Range struct {
	Min any `yaml:"min,omitempty" json:"min,omitempty"`
	Max any `yaml:"max,omitempty" json:"max,omitempty"`
}

// TableMetadata captures remote-side measurements taken at introspection
// time. Metadata is advisory: syncs run without it, it only tunes policy.
type TableMetadata struct {
	RowCount        int64            `yaml:"row_count,omitempty" json:"row_count,omitempty"`
	MinID           int64            `yaml:"min_id,omitempty" json:"min_id,omitempty"`
	MaxID           int64            `yaml:"max_id,omitempty" json:"max_id,omitempty"`
	AnalyzedAt      time.Time        `yaml:"analyzed_at,omitempty" json:"analyzed_at,omitempty"`
	EstimatedSizeMB float64          `yaml:"estimated_size_mb,omitempty" json:"estimated_size_mb,omitempty"`
	TimestampRanges map[string]Range `yaml:"timestamp_ranges,omitempty" json:"timestamp_ranges,omitempty"`
}
