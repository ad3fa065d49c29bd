package schema

import "fmt"

// CacheStrategy selects how a table's local copy is kept fresh.
type CacheStrategy string

const (
	StrategyFull        CacheStrategy = "full"
	StrategyIncremental CacheStrategy = "incremental"
	StrategyOnDemand    CacheStrategy = "on_demand"
)

// ValidStrategy reports membership in the closed strategy set.
func ValidStrategy(s CacheStrategy) bool {
	switch s {
	case StrategyFull, StrategyIncremental, StrategyOnDemand:
		return true
	}
	return false
}

// Defaults for a SyncConfig with no explicit policy.
const (
	DefaultOrderBy             = "id"
	DefaultChunkSize           = 1000
	DefaultMaxConcurrentChunks = 3
)

// SyncConfig is the per-table synchronization policy.
type SyncConfig struct {
	// Where is a filter in a small SQL-ish dialect: `col = literal`,
	// `col LIKE pattern`, `col IS NULL` and AND-chains of those. The sync
	// manager translates it into JSONSQL where-expressions; any other
	// shape is a configuration error at run time.
	Where string `yaml:"where,omitempty" json:"where,omitempty"`

	Limit          int           `yaml:"limit,omitempty" json:"limit,omitempty"`
	OrderBy        string        `yaml:"order_by,omitempty" json:"order_by,omitempty"`
	ChunkSize      int           `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`
	EnableChunking *bool         `yaml:"enable_chunking,omitempty" json:"enable_chunking,omitempty"`
	TTL            int           `yaml:"ttl,omitempty" json:"ttl,omitempty"` // seconds
	Strategy       CacheStrategy `yaml:"cache_strategy,omitempty" json:"cache_strategy,omitempty"`
	AutoSync       bool          `yaml:"auto_sync,omitempty" json:"auto_sync,omitempty"`
	SyncInterval   int           `yaml:"sync_interval,omitempty" json:"sync_interval,omitempty"` // seconds
	Disabled       bool          `yaml:"disabled,omitempty" json:"disabled,omitempty"`

	IncludeFields []string `yaml:"include_fields,omitempty" json:"include_fields,omitempty"`
	ExcludeFields []string `yaml:"exclude_fields,omitempty" json:"exclude_fields,omitempty"`

	IncrementalField string `yaml:"incremental_field,omitempty" json:"incremental_field,omitempty"`
	IncrementalMode  bool   `yaml:"incremental_mode,omitempty" json:"incremental_mode,omitempty"`

	PrefetchRelationships bool `yaml:"prefetch_relationships,omitempty" json:"prefetch_relationships,omitempty"`
	MaxConcurrentChunks   int  `yaml:"max_concurrent_chunks,omitempty" json:"max_concurrent_chunks,omitempty"`
}

// DefaultSyncConfig returns the policy applied when a table declares none.
func DefaultSyncConfig() *SyncConfig {
	enabled := true
	return &SyncConfig{
		OrderBy:             DefaultOrderBy,
		ChunkSize:           DefaultChunkSize,
		EnableChunking:      &enabled,
		Strategy:            StrategyFull,
		MaxConcurrentChunks: DefaultMaxConcurrentChunks,
	}
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *SyncConfig) ApplyDefaults() {
	if c.OrderBy == "" {
		c.OrderBy = DefaultOrderBy
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.EnableChunking == nil {
		enabled := true
		c.EnableChunking = &enabled
	}
	if c.Strategy == "" {
		c.Strategy = StrategyFull
	}
	if c.MaxConcurrentChunks == 0 {
		c.MaxConcurrentChunks = DefaultMaxConcurrentChunks
	}
}

// ChunkingEnabled reports the effective chunking switch.
func (c *SyncConfig) ChunkingEnabled() bool {
	return c.EnableChunking == nil || *c.EnableChunking
}

// Validate enforces the config invariants. Defaults are applied first so a
// partially specified config validates the same way it will run.
func (c *SyncConfig) Validate() error {
	c.ApplyDefaults()

	if c.ChunkSize <= 0 {
		return InvalidConfigErr(fmt.Sprintf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.Limit < 0 {
		return InvalidConfigErr(fmt.Sprintf("limit must not be negative, got %d", c.Limit))
	}
	if c.Limit > 0 && c.Limit < c.ChunkSize {
		return InvalidConfigErr(fmt.Sprintf("limit %d is smaller than chunk_size %d", c.Limit, c.ChunkSize))
	}
	if !ValidStrategy(c.Strategy) {
		return InvalidConfigErr(fmt.Sprintf("unknown cache_strategy %q", c.Strategy))
	}
	if c.IncrementalMode && c.IncrementalField == "" {
		return InvalidConfigErr("incremental_mode requires incremental_field")
	}
	if c.TTL < 0 {
		return InvalidConfigErr(fmt.Sprintf("ttl must not be negative, got %d", c.TTL))
	}
	if c.MaxConcurrentChunks <= 0 {
		return InvalidConfigErr(fmt.Sprintf("max_concurrent_chunks must be positive, got %d", c.MaxConcurrentChunks))
	}
	return nil
}

// Clone returns a deep copy, so a registered schema's policy can be
// adjusted per run without mutating the registry.
func (c *SyncConfig) Clone() *SyncConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.EnableChunking != nil {
		v := *c.EnableChunking
		out.EnableChunking = &v
	}
	out.IncludeFields = append([]string(nil), c.IncludeFields...)
	out.ExcludeFields = append([]string(nil), c.ExcludeFields...)
	return &out
}
