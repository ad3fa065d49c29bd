// Package syncer runs the table mirroring: it picks a strategy per table,
// pages rows out of the remote in chunks, commits them through the store and
// keeps the sync catalog current. Runs are single-flight per table and
// cancellable at chunk boundaries.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
	"github.com/portasync/portasync/store"
)

// DefaultMaxConcurrent bounds SyncAll fan-out when the caller passes 0.
const DefaultMaxConcurrent = 3

// timeLayout matches the catalog's fixed-width UTC timestamps.
const timeLayout = "2006-01-02T15:04:05Z"

// Manager coordinates sync runs across tables.
type Manager struct {
	client   jsonsql.Client
	store    *store.Store
	registry *schema.Registry
	log      *logrus.Logger

	// Strategy applied when neither the call nor the schema names one.
	defaultStrategy schema.CacheStrategy

	mu       sync.Mutex
	inflight map[string]*task
}

type task struct {
	runID   string
	started time.Time
	cancel  context.CancelFunc
}

// New builds a Manager. defaultStrategy falls back to full when empty.
func New(client jsonsql.Client, st *store.Store, reg *schema.Registry, defaultStrategy schema.CacheStrategy, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.New()
	}
	if defaultStrategy == "" {
		defaultStrategy = schema.StrategyFull
	}
	return &Manager{
		client:          client,
		store:           st,
		registry:        reg,
		log:             log,
		defaultStrategy: defaultStrategy,
		inflight:        make(map[string]*task),
	}
}

// Options tunes one SyncTable call.
type Options struct {
	// Strategy overrides the schema's cache strategy for this run.
	Strategy schema.CacheStrategy

	// Force bypasses the freshness gate.
	Force bool

	// Progress receives chunk-level progress when non-nil.
	Progress ProgressFunc

	// TriggeredBy is recorded in the sync history ("manual" when empty).
	TriggeredBy string
}

// SyncTable runs one sync of name and returns its Result. A second call for
// the same table while one is in flight fails with ErrSyncInProgress. The
// returned error is non-nil only for admission and configuration failures;
// remote and storage failures during the run are reported in the Result.
func (m *Manager) SyncTable(ctx context.Context, name string, opts Options) (*Result, error) {
	ts, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}

	cfg := ts.EffectiveConfig()
	strategy := opts.Strategy
	if strategy == "" {
		strategy = cfg.Strategy
	}
	if strategy == "" {
		strategy = m.defaultStrategy
	}
	if !schema.ValidStrategy(strategy) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if strategy == schema.StrategyIncremental && cfg.IncrementalField == "" {
		return nil, ConfigurationErr("incremental sync of %s needs incremental_field", name)
	}
	baseWhere, err := translateWhere(cfg.Where)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, busy := m.inflight[name]; busy {
		m.mu.Unlock()
		return nil, SyncInProgressErr(name)
	}
	c, cancelFn := context.WithCancel(ctx)
	tk := &task{runID: uuid.NewString(), started: time.Now(), cancel: cancelFn}
	m.inflight[name] = tk
	m.mu.Unlock()

	defer func() {
		cancelFn()
		m.mu.Lock()
		delete(m.inflight, name)
		m.mu.Unlock()
	}()

	res := &Result{
		RunID:     tk.runID,
		Table:     name,
		Strategy:  strategy,
		StartedAt: tk.started.UTC(),
	}

	if cfg.Disabled {
		res.Status = StatusSkipped
		m.finish(c, res, opts, nil)
		return res, nil
	}

	if !opts.Force && strategy != schema.StrategyOnDemand {
		stale, err := m.store.IsStale(c, name)
		if err != nil {
			return nil, err
		}
		if !stale {
			res.Status = StatusSkipped
			m.finish(c, res, opts, nil)
			return res, nil
		}
	}

	// Materialize the data table before writing. Idempotent for an
	// unchanged schema; a changed schema drops the old copy here.
	if err := m.store.RegisterTable(c, ts); err != nil {
		return nil, err
	}

	var runErr error
	switch strategy {
	case schema.StrategyFull:
		runErr = m.runFull(c, ts, cfg, baseWhere, res, opts.Progress)
	case schema.StrategyIncremental:
		runErr = m.runIncremental(c, ts, cfg, baseWhere, res, opts)
	case schema.StrategyOnDemand:
		res.Status = StatusSuccess
	}

	m.finish(c, res, opts, runErr)
	return res, nil
}

// finish stamps the terminal state, updates the catalog failure columns if
// needed and appends the history row.
func (m *Manager) finish(ctx context.Context, res *Result, opts Options, runErr error) {
	res.CompletedAt = time.Now().UTC()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	switch {
	case runErr == nil && res.Status == "":
		res.Status = StatusSuccess
	case errors.Is(runErr, ErrCancelled) || errors.Is(runErr, context.Canceled):
		res.Status = StatusCancelled
		res.Error = ErrCancelled.Error()
	case runErr != nil:
		res.Status = StatusFailed
		res.Error = runErr.Error()
	}

	// History and failure bookkeeping are best-effort even when the run
	// context is gone.
	if ctx.Err() != nil {
		ctx = context.Background()
	}

	if res.Status == StatusFailed {
		if jsonsql.IsAccessDenied(runErr) {
			m.registry.SetDisabled(res.Table, true)
			m.log.WithField("table", res.Table).Warn("Access denied by remote, table disabled")
		}
		if err := m.store.RecordSyncFailure(ctx, res.Table, res.Error); err != nil {
			m.log.WithError(err).WithField("table", res.Table).Warn("Failed to record sync failure")
		}
	}

	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "manual"
	}

	durationMS := res.Duration.Milliseconds()
	completed := res.CompletedAt.Format(timeLayout)
	var errMsg *string
	if res.Error != "" {
		errMsg = &res.Error
	}
	entry := store.HistoryEntry{
		TableName:        res.Table,
		SyncType:         string(res.Strategy),
		StartedAt:        res.StartedAt.Format(timeLayout),
		CompletedAt:      &completed,
		DurationMS:       &durationMS,
		RowsFetched:      res.RowsFetched,
		RowsInserted:     res.RowsInserted,
		RowsUpdated:      res.RowsUpdated,
		RowsDeleted:      res.RowsDeleted,
		ChunksProcessed:  res.ChunksProcessed,
		Status:           string(res.Status),
		ErrorMessage:     errMsg,
		TriggeredBy:      &triggeredBy,
		CheckpointBefore: res.CheckpointBefore,
		CheckpointAfter:  res.CheckpointAfter,
	}
	if err := m.store.AppendHistory(ctx, entry); err != nil {
		m.log.WithError(err).WithField("table", res.Table).Warn("Failed to append sync history")
	}

	m.log.WithFields(logrus.Fields{
		"table":    res.Table,
		"run_id":   res.RunID,
		"strategy": res.Strategy,
		"status":   res.Status,
		"rows":     res.RowsFetched,
		"duration": res.Duration,
	}).Info("Sync finished")
}

// CancelSync requests cooperative cancellation of an in-flight run. The run
// stops at the next chunk boundary; committed chunks stay. Returns false
// when no run is in flight for name.
func (m *Manager) CancelSync(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	tk, ok := m.inflight[name]
	if !ok {
		return false
	}
	tk.cancel()
	return true
}

// InFlight reports whether a run is active for name.
func (m *Manager) InFlight(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[name]
	return ok
}

// SyncAll syncs every registered table under a fan-out bound. Every table
// gets a Result; per-table failures never abort the batch.
func (m *Manager) SyncAll(ctx context.Context, maxConcurrent int, opts Options) map[string]*Result {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	tables := m.registry.ListTables()
	results := make(map[string]*Result, len(tables))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrent)
	)

	for _, name := range tables {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := m.SyncTable(ctx, name, opts)
			if err != nil {
				res = &Result{
					Table:  name,
					Status: StatusFailed,
					Error:  err.Error(),
				}
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}
