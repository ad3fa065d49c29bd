package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
	"github.com/portasync/portasync/store"
)

// runIncremental fetches only rows past the stored checkpoint and upserts
// them. Without a checkpoint there is nothing to advance from, so the run
// degrades to a full sync.
func (m *Manager) runIncremental(ctx context.Context, ts *schema.TableSchema, cfg *schema.SyncConfig, baseWhere jsonsql.Where, res *Result, opts Options) error {
	incrField := ts.FieldByName(cfg.IncrementalField)
	if incrField == nil {
		incrField = ts.FieldNamed(cfg.IncrementalField)
	}
	if incrField == nil {
		return ConfigurationErr("incremental_field %q is not a field of %s", cfg.IncrementalField, ts.TableName)
	}

	checkpoint, err := m.store.Checkpoint(ctx, ts.TableName)
	if err != nil {
		return err
	}
	if checkpoint == nil {
		m.log.WithField("table", ts.TableName).
			Info("No checkpoint recorded, falling back to full sync")
		res.Strategy = schema.StrategyFull
		return m.runFull(ctx, ts, cfg, baseWhere, res, opts.Progress)
	}
	res.CheckpointBefore = checkpoint

	where := jsonsql.Gt(incrField.Name, *checkpoint)
	if baseWhere != nil {
		where = jsonsql.And(baseWhere, where)
	}

	req := jsonsql.Select(ts.TableName, []string{"*"}).
		WithWhere(where).
		WithOrderBy(incrField.Name)
	if cfg.Limit > 0 {
		req = req.WithLimit(cfg.Limit)
	}

	page, err := m.client.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("fetching %s past checkpoint: %w", ts.TableName, err)
	}
	res.RowsFetched = int64(len(page))

	if len(page) > 0 {
		inserted, updated, err := m.store.UpsertRows(ctx, ts, page)
		if err != nil {
			return err
		}
		res.RowsInserted = inserted
		res.RowsUpdated = updated
		res.ChunksProcessed = 1
		m.reportProgress(res, 1, opts.Progress)
	}

	// An empty page means nothing moved past the checkpoint; the cursor
	// must not advance, or rows landing between now and the stored value
	// would be skipped forever.
	var next *string
	if len(page) > 0 {
		cp := nextCheckpoint(page, incrField.Position)
		next = &cp
		res.CheckpointAfter = next
	} else {
		res.CheckpointAfter = checkpoint
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
		Checkpoint:    next,
	})
}

// nextCheckpoint is the largest incremental column value seen in the page.
// When the column is absent from every row of a non-empty page the current
// time stands in, so the cursor still moves forward.
func nextCheckpoint(page jsonsql.Result, pos int) string {
	var best string
	found := false
	for _, row := range page {
		if pos >= len(row) || row[pos] == nil {
			continue
		}
		s, ok := jsonsql.AsString(row[pos])
		if !ok {
			s = fmt.Sprintf("%v", row[pos])
		}
		if !found || s > best {
			best, found = s, true
		}
	}
	if !found {
		return time.Now().UTC().Format(timeLayout)
	}
	return best
}
