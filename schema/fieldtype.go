// Package schema models the structure of a mirrored remote table: positional
// field slots, per-field types and names, sync policy and remote-side
// statistics. Schemas are built by the introspector or loaded from a schema
// document, registered into a Registry, and are immutable for the duration
// of a sync run.
package schema

import (
	"fmt"
	"strings"
)

// FieldType is the closed set of column types the engine understands.
type FieldType string

const (
	TypeInteger  FieldType = "INTEGER"
	TypeString   FieldType = "STRING"
	TypeBoolean  FieldType = "BOOLEAN"
	TypeFloat    FieldType = "FLOAT"
	TypeDatetime FieldType = "DATETIME"
	TypeDate     FieldType = "DATE"
	TypeJSON     FieldType = "JSON"
	TypeUnknown  FieldType = "UNKNOWN"
)

// ParseFieldType maps a document string onto a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	t := FieldType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeInteger, TypeString, TypeBoolean, TypeFloat, TypeDatetime, TypeDate, TypeJSON, TypeUnknown:
		return t, nil
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrInvalidFieldType, s)
}

// SQLiteType returns the column affinity used when the local data table is
// created. Booleans are stored as INTEGER; dates, datetimes and JSON as TEXT.
func (t FieldType) SQLiteType() string {
	switch t {
	case TypeInteger, TypeBoolean:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Valid reports whether t is a member of the closed enumeration.
func (t FieldType) Valid() bool {
	_, err := ParseFieldType(string(t))
	return err == nil
}
