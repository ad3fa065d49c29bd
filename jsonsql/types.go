// Package jsonsql defines the wire protocol spoken to the remote table
// service and the client contract the sync engine calls through.
//
// A request is a JSON document with a method and nested params; results are
// positional lists of rows whose column order matches the field positions of
// the mirrored table.
package jsonsql

import "encoding/json"

// Method names the SQL-like operation a request performs.
type Method string

const (
	MethodSelect Method = "select"
	MethodInsert Method = "insert"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
)

// Params carries the body of a select-style request.
type Params struct {
	Data    []string `json:"data,omitempty"`
	From    string   `json:"from,omitempty"`
	Where   Where    `json:"where,omitempty"`
	Limit   *int     `json:"limit,omitempty"`
	Offset  *int     `json:"offset,omitempty"`
	OrderBy string   `json:"order_by,omitempty"`
}

// Request is a complete JSONSQL document.
type Request struct {
	Method Method `json:"method"`
	Params Params `json:"params"`
}

// Row is one positional result row. Values are untyped JSON scalars
// (json.Number for numerics when decoded by HTTPClient) or nested
// maps/slices for JSON columns.
type Row []any

// Result is the full positional result set of a request. Aggregate queries
// return a single row of scalars.
type Result []Row

// Scalar returns the first cell of the first row, for aggregate results
// like COUNT(*). ok is false when the result is empty.
func (r Result) Scalar() (any, bool) {
	if len(r) == 0 || len(r[0]) == 0 {
		return nil, false
	}
	return r[0][0], true
}

// Select builds a select request for the given table.
func Select(table string, data []string) Request {
	return Request{
		Method: MethodSelect,
		Params: Params{Data: data, From: table},
	}
}

// WithLimit sets a row cap on the request.
func (r Request) WithLimit(n int) Request {
	r.Params.Limit = &n
	return r
}

// WithOffset sets the paging offset on the request.
func (r Request) WithOffset(n int) Request {
	r.Params.Offset = &n
	return r
}

// WithOrderBy sets the ordering column on the request.
func (r Request) WithOrderBy(col string) Request {
	r.Params.OrderBy = col
	return r
}

// WithWhere sets the filter expression on the request.
func (r Request) WithWhere(w Where) Request {
	r.Params.Where = w
	return r
}

// AsInt64 coerces a result cell to int64. Handles json.Number, native
// integer types from in-process clients, and float64 values that carry an
// integral value.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
		return 0, false
	}
	return 0, false
}

// AsFloat64 coerces a result cell to float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// AsString coerces a result cell to its string form.
func AsString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	}
	return "", false
}
