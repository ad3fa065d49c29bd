package schema

import (
	"sort"
	"strings"
)

// TableSchema is the full description of a mirrored table. Fields are keyed
// by position; positions without a definition resolve to synthetic
// Field_<n> slots. TotalFields is fixed once the schema is registered.
type TableSchema struct {
	TableName   string
	Fields      map[int]*FieldDefinition
	TotalFields int
	SyncConfig  *SyncConfig
	Metadata    *TableMetadata
}

// NewTableSchema assembles a schema from a field list, rejecting duplicate
// positions and deriving TotalFields from the highest position seen.
func NewTableSchema(name string, fields []*FieldDefinition) (*TableSchema, error) {
	ts := &TableSchema{
		TableName: name,
		Fields:    make(map[int]*FieldDefinition, len(fields)),
	}
	for _, f := range fields {
		if _, dup := ts.Fields[f.Position]; dup {
			return nil, DuplicatePositionErr(name, f.Position)
		}
		ts.Fields[f.Position] = f
		if f.Position+1 > ts.TotalFields {
			ts.TotalFields = f.Position + 1
		}
	}
	return ts, nil
}

// ResolveSelectStar returns the resolved name of every slot in ascending
// position order. Undescribed positions yield Field_<n>. When the shape is
// entirely unknown the single sentinel "*" is returned, which the remote
// expands itself.
func (ts *TableSchema) ResolveSelectStar(useAliases bool) []string {
	if ts.TotalFields == 0 && len(ts.Fields) == 0 {
		return []string{"*"}
	}

	names := make([]string, 0, ts.TotalFields)
	for p := 0; p < ts.TotalFields; p++ {
		f, ok := ts.Fields[p]
		if !ok {
			names = append(names, SyntheticName(p))
			continue
		}
		if useAliases {
			names = append(names, f.DisplayName())
		} else {
			names = append(names, f.Name)
		}
	}
	return names
}

// MapRow converts a positional remote row into a named map, applying each
// field's transformer. Values at undescribed positions map to their
// synthetic name; positions beyond the row length are absent from the map.
func (ts *TableSchema) MapRow(row []any) map[string]any {
	out := make(map[string]any, len(row))
	for p, v := range row {
		if f, ok := ts.Fields[p]; ok {
			out[f.DisplayName()] = f.Transform(v)
		} else {
			out[SyntheticName(p)] = v
		}
	}
	return out
}

// FieldByName finds a field by name, alias or local name.
func (ts *TableSchema) FieldByName(q string) *FieldDefinition {
	for _, f := range ts.Fields {
		if f.Matches(q) {
			return f
		}
	}
	return nil
}

// FieldByPosition returns the field at position p, or nil.
func (ts *TableSchema) FieldByPosition(p int) *FieldDefinition {
	return ts.Fields[p]
}

// IDField returns the field named "id" (case-insensitive), which becomes
// the local primary key when present.
func (ts *TableSchema) IDField() *FieldDefinition {
	for _, f := range ts.Fields {
		if strings.EqualFold(f.Name, "id") {
			return f
		}
	}
	return nil
}

// FieldNamed finds a field whose canonical name matches q case-insensitively.
func (ts *TableSchema) FieldNamed(q string) *FieldDefinition {
	for _, f := range ts.Fields {
		if strings.EqualFold(f.Name, q) {
			return f
		}
	}
	return nil
}

// OrderedFields returns the declared fields in ascending position order.
func (ts *TableSchema) OrderedFields() []*FieldDefinition {
	out := make([]*FieldDefinition, 0, len(ts.Fields))
	for _, f := range ts.Fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// EffectiveConfig returns the schema's sync policy, falling back to the
// defaults when none is declared. The result is always a private copy.
func (ts *TableSchema) EffectiveConfig() *SyncConfig {
	if ts.SyncConfig == nil {
		return DefaultSyncConfig()
	}
	c := ts.SyncConfig.Clone()
	c.ApplyDefaults()
	return c
}
