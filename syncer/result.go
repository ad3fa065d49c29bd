package syncer

import (
	"time"

	"github.com/portasync/portasync/schema"
)

// Status is the terminal state of a sync run.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Result summarizes one sync run of one table.
type Result struct {
	RunID    string
	Table    string
	Strategy schema.CacheStrategy
	Status   Status

	RowsFetched     int64
	RowsInserted    int64
	RowsUpdated     int64
	RowsDeleted     int64
	ChunksProcessed int64

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration

	CheckpointBefore *string
	CheckpointAfter  *string

	Error string
}

// Progress is delivered to the caller's callback after every committed
// chunk.
type Progress struct {
	Table            string
	TotalChunks      int64 // 0 when the total is unknown
	CompletedChunks  int64
	RowsSynced       int64
	BytesTransferred int64 // rough, rows x 100
	Elapsed          time.Duration
	ETA              *time.Duration // nil when TotalChunks is unknown
}

// ProgressFunc receives chunk-level progress. It is called from the syncing
// goroutine; slow callbacks slow the sync.
type ProgressFunc func(Progress)

// estimatedBytesPerRow is the rough wire cost used for the progress
// BytesTransferred figure.
const estimatedBytesPerRow = 100
