package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
	"github.com/portasync/portasync/store"
)

// runFull replaces the local copy: clear, then page the remote in chunk
// sized SELECTs until an empty or short page, writing each chunk in REPLACE
// mode so a rerun after partial failure converges.
func (m *Manager) runFull(ctx context.Context, ts *schema.TableSchema, cfg *schema.SyncConfig, baseWhere jsonsql.Where, res *Result, progress ProgressFunc) error {
	deleted, err := m.store.ClearTable(ctx, ts.TableName)
	if err != nil {
		return err
	}
	res.RowsDeleted = deleted

	chunkSize := cfg.ChunkSize
	if !cfg.ChunkingEnabled() {
		// One request for the whole table, capped by the configured limit.
		chunkSize = cfg.Limit
		if chunkSize <= 0 {
			chunkSize = cfg.ChunkSize
		}
	}

	var totalChunks int64
	if ts.Metadata != nil && ts.Metadata.RowCount > 0 {
		totalChunks = (ts.Metadata.RowCount + int64(chunkSize) - 1) / int64(chunkSize)
	}

	idField := ts.IDField()
	var minID, maxID *int64

	offset := 0
	for {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		// Never request past the configured row limit; the final page
		// shrinks to whatever remains.
		pageLimit := chunkSize
		if cfg.Limit > 0 {
			remaining := cfg.Limit - int(res.RowsFetched)
			if remaining <= 0 {
				break
			}
			if remaining < pageLimit {
				pageLimit = remaining
			}
		}

		req := jsonsql.Select(ts.TableName, []string{"*"}).
			WithLimit(pageLimit).
			WithOffset(offset).
			WithOrderBy(cfg.OrderBy)
		if baseWhere != nil {
			req = req.WithWhere(baseWhere)
		}

		page, err := m.client.Execute(ctx, req)
		if err != nil {
			return fmt.Errorf("fetching %s offset %d: %w", ts.TableName, offset, err)
		}
		if len(page) == 0 {
			break
		}

		offset += len(page)
		res.RowsFetched += int64(len(page))

		inserted, err := m.store.BulkInsert(ctx, ts, page, store.ConflictReplace)
		if err != nil {
			return err
		}
		res.RowsInserted += inserted
		res.ChunksProcessed++

		if idField != nil {
			lo, hi := idRange(page, idField.Position)
			if lo != nil && (minID == nil || *lo < *minID) {
				minID = lo
			}
			if hi != nil && (maxID == nil || *hi > *maxID) {
				maxID = hi
			}
		}

		m.reportProgress(res, totalChunks, progress)

		if len(page) < pageLimit {
			break
		}
		if !cfg.ChunkingEnabled() {
			break
		}
	}

	localCount, err := m.store.DataRowCount(ctx, ts.TableName)
	if err != nil {
		return err
	}

	return m.store.RecordSyncSuccess(ctx, ts.TableName, store.SyncOutcome{
		TTLSeconds:    int64(cfg.TTL),
		RowsFetched:   res.RowsFetched,
		RowsInserted:  res.RowsInserted,
		LocalRowCount: localCount,
		DurationMS:    time.Since(res.StartedAt).Milliseconds(),
		MinID:         minID,
		MaxID:         maxID,
	})
}

// idRange scans a chunk for the smallest and largest id values.
func idRange(page jsonsql.Result, pos int) (*int64, *int64) {
	var lo, hi *int64
	for _, row := range page {
		if pos >= len(row) {
			continue
		}
		n, ok := jsonsql.AsInt64(row[pos])
		if !ok {
			continue
		}
		v := n
		if lo == nil || v < *lo {
			lo = &v
		}
		if hi == nil || v > *hi {
			hi = &v
		}
	}
	return lo, hi
}

// reportProgress delivers one chunk-completed progress update.
func (m *Manager) reportProgress(res *Result, totalChunks int64, progress ProgressFunc) {
	if progress == nil {
		return
	}

	elapsed := time.Since(res.StartedAt)
	p := Progress{
		Table:            res.Table,
		TotalChunks:      totalChunks,
		CompletedChunks:  res.ChunksProcessed,
		RowsSynced:       res.RowsFetched,
		BytesTransferred: res.RowsFetched * estimatedBytesPerRow,
		Elapsed:          elapsed,
	}
	if totalChunks > 0 && res.ChunksProcessed > 0 && res.ChunksProcessed <= totalChunks {
		avg := elapsed / time.Duration(res.ChunksProcessed)
		eta := avg * time.Duration(totalChunks-res.ChunksProcessed)
		p.ETA = &eta
	}
	progress(p)
}
