package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress rejects a second concurrent run for the same table.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrConfiguration marks a sync policy the engine cannot execute, such
	// as an untranslatable where clause or a missing incremental field.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownStrategy rejects a strategy outside {full, incremental,
	// on_demand}.
	ErrUnknownStrategy = errors.New("unknown sync strategy")

	// ErrCancelled marks a run stopped at a chunk boundary by CancelSync or
	// context cancellation.
	ErrCancelled = errors.New("sync cancelled")
)

// SyncInProgressErr wraps ErrSyncInProgress with the table name.
func SyncInProgressErr(table string) error {
	return fmt.Errorf("%w: %s", ErrSyncInProgress, table)
}

// ConfigurationErr wraps ErrConfiguration with a detail message.
func ConfigurationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
