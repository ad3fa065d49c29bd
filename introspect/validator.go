package introspect

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/portasync/portasync/jsonsql"
	"github.com/portasync/portasync/schema"
)

// Validation outcome thresholds on the sampled match ratio.
const (
	confirmedThreshold = 0.95
	suspectThreshold   = 0.80
)

// Verdict classifies one validated mapping.
type Verdict string

const (
	VerdictConfirmed Verdict = "confirmed"
	VerdictSuspect   Verdict = "suspect"
	VerdictRejected  Verdict = "rejected"
)

// FieldValidation is the measured evidence that a positional field really
// is the claimed remote column. Advisory only; nothing here mutates the
// schema.
type FieldValidation struct {
	Position     int
	RemoteColumn string
	MatchRatio   float64
	SampleSize   int
	ValidatedAt  time.Time
	DType        schema.FieldType
	NullCount    int
	UniqueCount  int
	MinValue     any
	MaxValue     any
	Verdict      Verdict
}

// Validator checks claimed position-to-column mappings against the live
// remote table.
type Validator struct {
	client     jsonsql.Client
	log        *logrus.Logger
	sampleSize int
}

// NewValidator returns a Validator sampling sampleSize rows per check.
func NewValidator(client jsonsql.Client, sampleSize int, log *logrus.Logger) *Validator {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	if log == nil {
		log = logrus.New()
	}
	return &Validator{client: client, log: log, sampleSize: sampleSize}
}

// ValidateField compares the values at position in a SELECT * sample with a
// column-wise SELECT of remoteColumn, row by row.
func (v *Validator) ValidateField(ctx context.Context, table string, position int, remoteColumn string) (*FieldValidation, error) {
	wide, err := v.client.Execute(ctx, jsonsql.Select(table, []string{"*"}).WithLimit(v.sampleSize))
	if err != nil {
		return nil, fmt.Errorf("sampling %s: %w", table, err)
	}
	narrow, err := v.client.Execute(ctx, jsonsql.Select(table, []string{remoteColumn}).WithLimit(v.sampleSize))
	if err != nil {
		return nil, fmt.Errorf("sampling %s.%s: %w", table, remoteColumn, err)
	}

	n := len(wide)
	if len(narrow) < n {
		n = len(narrow)
	}

	matches := 0
	for i := 0; i < n; i++ {
		var a any
		if position < len(wide[i]) {
			a = wide[i][position]
		}
		var b any
		if len(narrow[i]) > 0 {
			b = narrow[i][0]
		}
		if cellsEqual(a, b) {
			matches++
		}
	}

	fv := &FieldValidation{
		Position:     position,
		RemoteColumn: remoteColumn,
		SampleSize:   n,
		ValidatedAt:  time.Now().UTC(),
	}
	if n > 0 {
		fv.MatchRatio = float64(matches) / float64(n)
	}
	summarize(fv, narrow)

	switch {
	case fv.MatchRatio >= confirmedThreshold:
		fv.Verdict = VerdictConfirmed
	case fv.MatchRatio >= suspectThreshold:
		fv.Verdict = VerdictSuspect
	default:
		fv.Verdict = VerdictRejected
	}

	v.log.WithFields(logrus.Fields{
		"table":   table,
		"pos":     position,
		"column":  remoteColumn,
		"ratio":   fv.MatchRatio,
		"verdict": fv.Verdict,
	}).Debug("Field mapping validated")

	return fv, nil
}

// ValidateMapping validates every entry of a claimed position-to-column
// mapping and groups the outcomes by verdict.
func (v *Validator) ValidateMapping(ctx context.Context, table string, mapping map[int]string) (map[Verdict][]*FieldValidation, error) {
	out := map[Verdict][]*FieldValidation{}
	for _, pos := range sortedPositions(mapping) {
		fv, err := v.ValidateField(ctx, table, pos, mapping[pos])
		if err != nil {
			return nil, err
		}
		out[fv.Verdict] = append(out[fv.Verdict], fv)
	}
	return out, nil
}

func sortedPositions(m map[int]string) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// cellsEqual compares two sampled cells, treating numeric representations
// of the same value as equal and two nulls as equal.
func cellsEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if af, ok := jsonsql.AsFloat64(a); ok {
		if bf, ok := jsonsql.AsFloat64(b); ok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// summarize computes the dtype family and the column statistics over the
// narrow sample.
func summarize(fv *FieldValidation, narrow jsonsql.Result) {
	fv.DType = schema.TypeUnknown
	seen := map[string]struct{}{}

	for _, row := range narrow {
		if len(row) == 0 {
			continue
		}
		cell := row[0]
		if cell == nil {
			fv.NullCount++
			continue
		}

		if t := inferType(cell); fv.DType == schema.TypeUnknown {
			fv.DType = t
		}
		seen[fmt.Sprintf("%v", cell)] = struct{}{}

		switch fv.DType {
		case schema.TypeInteger, schema.TypeFloat:
			f, ok := jsonsql.AsFloat64(cell)
			if !ok {
				continue
			}
			if fv.MinValue == nil {
				fv.MinValue, fv.MaxValue = f, f
				continue
			}
			if f < fv.MinValue.(float64) {
				fv.MinValue = f
			}
			if f > fv.MaxValue.(float64) {
				fv.MaxValue = f
			}
		case schema.TypeDatetime, schema.TypeDate:
			s, ok := jsonsql.AsString(cell)
			if !ok {
				continue
			}
			if fv.MinValue == nil {
				fv.MinValue, fv.MaxValue = s, s
				continue
			}
			if s < fv.MinValue.(string) {
				fv.MinValue = s
			}
			if s > fv.MaxValue.(string) {
				fv.MaxValue = s
			}
		}
	}

	fv.UniqueCount = len(seen)
}
