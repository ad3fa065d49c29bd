// Package introspect builds table schemas by probing the remote service:
// it samples one row to discover the positional shape, infers field types
// and likely names, measures the table, and derives a default sync policy
// from what it found.
package introspect

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
)

// ErrEmptyTable marks a table that returned no sample row. An empty table
// cannot be introspected; it may also simply not exist, the remote does not
// distinguish the two.
var ErrEmptyTable = fmt.Errorf("introspect: table empty or missing")

// Options tunes a single introspection run.
type Options struct {
	// NameOverrides wins over pattern inference for the given positions.
	NameOverrides map[int]string

	// GatherMetadata also measures the table (row count, id range,
	// timestamp ranges). Measurement failures are not fatal; the schema is
	// returned with nil metadata.
	GatherMetadata bool
}

// Introspector probes remote tables through a JSONSQL client.
type Introspector struct {
	client jsonsql.Client
	log    *logrus.Logger
}

// New returns an Introspector using the given client.
func New(client jsonsql.Client, log *logrus.Logger) *Introspector {
	if log == nil {
		log = logrus.New()
	}
	return &Introspector{client: client, log: log}
}

// Introspect samples table and assembles a TableSchema with inferred
// fields, optional metadata and a derived sync policy.
func (in *Introspector) Introspect(ctx context.Context, table string, opts Options) (*schema.TableSchema, error) {
	res, err := in.client.Execute(ctx, jsonsql.Select(table, []string{"*"}).WithLimit(1))
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", table, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTable, table)
	}

	sample := res[0]
	fields := make([]*schema.FieldDefinition, 0, len(sample))
	for p, v := range sample {
		t := inferType(v)
		name := opts.NameOverrides[p]
		if name == "" {
			name = inferName(p, t, v)
		}

		f, err := schema.NewField(p, name, t)
		if err != nil {
			return nil, fmt.Errorf("building field %d of %s: %w", p, table, err)
		}
		fields = append(fields, f)
	}

	ts, err := schema.NewTableSchema(table, fields)
	if err != nil {
		return nil, err
	}
	ts.TotalFields = len(sample)

	rowCount := int64(-1)
	denied := false
	if opts.GatherMetadata {
		md, accessDenied := in.gatherMetadata(ctx, ts)
		denied = accessDenied
		if md != nil {
			ts.Metadata = md
			rowCount = md.RowCount
		}
	}

	ts.SyncConfig = defaultPolicy(ts, rowCount)
	if denied {
		ts.SyncConfig.Disabled = true
		in.log.WithField("table", table).
			Warn("Access denied by remote, table disabled")
	}

	in.log.WithFields(logrus.Fields{
		"table":        table,
		"total_fields": ts.TotalFields,
		"row_count":    rowCount,
		"strategy":     ts.SyncConfig.Strategy,
	}).Info("Table introspected")

	return ts, nil
}

// gatherMetadata measures the table with parallel aggregate queries.
// Returns a nil metadata when even the row count could not be fetched. The
// second return is true when any probe came back access-denied, which is a
// permanent per-table condition rather than a transient measurement failure.
func (in *Introspector) gatherMetadata(ctx context.Context, ts *schema.TableSchema) (*schema.TableMetadata, bool) {
	md := &schema.TableMetadata{
		AnalyzedAt:      time.Now().UTC(),
		TimestampRanges: map[string]schema.Range{},
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		countErr  error
		probeErrs []error
	)

	recordErr := func(err error) {
		mu.Lock()
		probeErrs = append(probeErrs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		res, err := in.client.Execute(ctx, jsonsql.Select(ts.TableName, []string{"COUNT(*)"}))
		if err != nil {
			countErr = err
			recordErr(err)
			return
		}
		if v, ok := res.Scalar(); ok {
			if n, ok := jsonsql.AsInt64(v); ok {
				mu.Lock()
				md.RowCount = n
				mu.Unlock()
			}
		}
	}()

	if idf := ts.IDField(); idf != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := in.client.Execute(ctx, jsonsql.Select(ts.TableName,
				[]string{fmt.Sprintf("MIN(%s)", idf.Name), fmt.Sprintf("MAX(%s)", idf.Name)}))
			if err != nil {
				recordErr(err)
				return
			}
			if len(res) == 0 || len(res[0]) < 2 {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if n, ok := jsonsql.AsInt64(res[0][0]); ok {
				md.MinID = n
			}
			if n, ok := jsonsql.AsInt64(res[0][1]); ok {
				md.MaxID = n
			}
		}()
	}

	for _, f := range ts.OrderedFields() {
		if f.Type != schema.TypeDatetime && f.Type != schema.TypeDate {
			continue
		}
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := in.client.Execute(ctx, jsonsql.Select(ts.TableName,
				[]string{fmt.Sprintf("MIN(%s)", f.Name), fmt.Sprintf("MAX(%s)", f.Name)}))
			if err != nil {
				recordErr(err)
				return
			}
			if len(res) == 0 || len(res[0]) < 2 {
				return
			}
			mu.Lock()
			md.TimestampRanges[f.Name] = schema.Range{Min: res[0][0], Max: res[0][1]}
			mu.Unlock()
		}()
	}

	wg.Wait()

	denied := false
	for _, err := range probeErrs {
		if jsonsql.IsAccessDenied(err) {
			denied = true
			break
		}
	}

	if countErr != nil {
		in.log.WithError(countErr).WithField("table", ts.TableName).
			Warn("Metadata unavailable, continuing without it")
		return nil, denied
	}
	return md, denied
}

// IntrospectAll introspects tables concurrently. Failures are isolated per
// table; the error map holds one entry per failed table and successful
// schemas are always returned.
func (in *Introspector) IntrospectAll(ctx context.Context, tables []string, opts Options) (map[string]*schema.TableSchema, map[string]error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		schemas = make(map[string]*schema.TableSchema, len(tables))
		errs    = make(map[string]error)
	)

	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	for _, table := range sorted {
		table := table
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts, err := in.Introspect(ctx, table, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[table] = err
				return
			}
			schemas[table] = ts
		}()
	}

	wg.Wait()
	return schemas, errs
}
