package schema

import (
	"fmt"
	"strings"
)

// Constraints is the recognized set of per-field constraint keys. Only
// primary_key influences the local data table today; the rest are carried
// for document round-tripping and collaborator tooling.
type Constraints struct {
	PrimaryKey bool     `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Nullable   *bool    `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Unique     bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
	Index      bool     `yaml:"index,omitempty" json:"index,omitempty"`
	ForeignKey string   `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
	MinLength  *int     `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength  *int     `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Ge         *float64 `yaml:"ge,omitempty" json:"ge,omitempty"`
	Le         *float64 `yaml:"le,omitempty" json:"le,omitempty"`
	Gt         *float64 `yaml:"gt,omitempty" json:"gt,omitempty"`
	Lt         *float64 `yaml:"lt,omitempty" json:"lt,omitempty"`
}

// Relationship describes how this field links to another mirrored table.
type Relationship struct {
	Type          string `yaml:"type,omitempty" json:"type,omitempty"` // one-to-many, many-to-one, many-to-many
	TargetTable   string `yaml:"target_table,omitempty" json:"target_table,omitempty"`
	BackPopulates string `yaml:"back_populates,omitempty" json:"back_populates,omitempty"`
	FieldName     string `yaml:"field_name,omitempty" json:"field_name,omitempty"`
}

// FieldDefinition describes one column slot of the positional remote row.
type FieldDefinition struct {
	Position    int
	Name        string // canonical name in the local store
	Alias       string // preferred external name
	LocalName   string // identifier-safe local column name, when it differs
	RemoteName  string // name for column-wise remote queries (validation)
	Type        FieldType
	Description string

	// Transformer runs during row mapping. Never fails: on conversion
	// failure the raw value flows through.
	Transformer     Transformer
	TransformerName string

	Constraints  *Constraints
	Relationship *Relationship
}

// NewField builds a field with the minimum required attributes.
func NewField(position int, name string, t FieldType) (*FieldDefinition, error) {
	if position < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativePosition, position)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: position %d", ErrEmptyName, position)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q at position %d", ErrInvalidFieldType, t, position)
	}
	return &FieldDefinition{Position: position, Name: name, Type: t}, nil
}

// DisplayName resolves the effective external name: local name wins over
// alias, alias over the canonical name.
func (f *FieldDefinition) DisplayName() string {
	if f.LocalName != "" {
		return f.LocalName
	}
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// ColumnName resolves the identifier used for the local SQL column.
func (f *FieldDefinition) ColumnName() string {
	if f.LocalName != "" {
		return SanitizeIdent(f.LocalName)
	}
	return SanitizeIdent(f.Name)
}

// PublicName is the name the user-facing view exposes the column under.
func (f *FieldDefinition) PublicName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Transform applies the field's transformer to v. The contract is total:
// no transformer means identity, and failed conversions keep the raw value.
func (f *FieldDefinition) Transform(v any) any {
	if f.Transformer != nil {
		return f.Transformer(v)
	}
	if f.TransformerName != "" {
		if t, ok := TransformerByName(f.TransformerName); ok {
			return t(v)
		}
	}
	return v
}

// Matches reports whether q names this field by name, alias or local name.
func (f *FieldDefinition) Matches(q string) bool {
	return q == f.Name || (f.Alias != "" && q == f.Alias) || (f.LocalName != "" && q == f.LocalName)
}

// IsPrimaryKey reports whether the field is declared as a primary key.
func (f *FieldDefinition) IsPrimaryKey() bool {
	return f.Constraints != nil && f.Constraints.PrimaryKey
}

// SanitizeIdent normalizes a name into a safe local SQL identifier:
// dashes, spaces and dots become underscores, and a leading digit is
// prefixed.
func SanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// SyntheticName is the placeholder name for an undescribed position.
func SyntheticName(position int) string {
	return fmt.Sprintf("Field_%d", position)
}
