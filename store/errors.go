package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cache database layer.
var (
	ErrTableNotFound      = errors.New("table not found in cache")
	ErrNotRegistered      = errors.New("table not registered in sync catalog")
	ErrNoPrimaryKey       = errors.New("table has no id field to upsert on")
	ErrUnsupportedCatalog = errors.New("unsupported catalog schema format version")
)

// TableNotFoundErr wraps ErrTableNotFound with the table name.
func TableNotFoundErr(table string) error {
	return fmt.Errorf("%w: %s", ErrTableNotFound, table)
}

// NotRegisteredErr wraps ErrNotRegistered with the table name.
func NotRegisteredErr(table string) error {
	return fmt.Errorf("%w: %s", ErrNotRegistered, table)
}
