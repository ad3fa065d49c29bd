package schema

import (
	"errors"
	"fmt"
)

// Sentinel errors for schema construction and document loading.
var (
	ErrInvalidFieldType  = errors.New("invalid field type")
	ErrDuplicatePosition = errors.New("duplicate field position")
	ErrInvalidConfig     = errors.New("invalid sync config")
	ErrEmptyName         = errors.New("field name must not be empty")
	ErrNegativePosition  = errors.New("field position must not be negative")
	ErrUnknownTable      = errors.New("table not registered")
)

// DuplicatePositionErr reports two fields claiming the same slot.
func DuplicatePositionErr(table string, pos int) error {
	return fmt.Errorf("%w: position %d in table %s", ErrDuplicatePosition, pos, table)
}

// InvalidConfigErr wraps a sync config validation failure with context.
func InvalidConfigErr(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, detail)
}
