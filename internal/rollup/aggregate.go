package rollup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownColumn reports a grouping dimension that does not exist on
// classified events. It is a configuration error: the run aborts before any
// aggregation happens.
var ErrUnknownColumn = errors.New("unknown grouping column")

// dimensions maps a grouping-column name to its accessor on a classified
// event. "type" and "count" are deliberately absent: they are the pivot and
// the measure, never grouping keys.
var dimensions = map[string]func(*Event) *string{
	"addon_version":   func(e *Event) *string { return e.AddonVersion },
	"app_version":     func(e *Event) *string { return e.AppVersion },
	"client_id":       func(e *Event) *string { return e.ClientID },
	"country":         func(e *Event) *string { return e.Country },
	"distribution_id": func(e *Event) *string { return e.DistributionID },
	"engine":          func(e *Event) *string { return &e.Engine },
	"locale":          func(e *Event) *string { return e.Locale },
	"search_cohort":   func(e *Event) *string { return e.SearchCohort },
	"source":          func(e *Event) *string { return &e.Source },
	"submission_date": func(e *Event) *string { return e.SubmissionDate },
}

// KnownDimensions returns the sorted set of valid grouping-column names.
func KnownDimensions() []string {
	out := make([]string, 0, len(dimensions))
	for name := range dimensions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ResolveColumns validates a grouping-column list and returns the accessors
// in the same order. Unknown or duplicated names fail with ErrUnknownColumn
// so that misconfiguration surfaces before any data is read.
func ResolveColumns(groupBy []string) ([]func(*Event) *string, error) {
	accs := make([]func(*Event) *string, len(groupBy))
	seen := make(map[string]struct{}, len(groupBy))
	for i, name := range groupBy {
		acc, ok := dimensions[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)",
				ErrUnknownColumn, name, strings.Join(KnownDimensions(), ", "))
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %q listed twice", ErrUnknownColumn, name)
		}
		seen[name] = struct{}{}
		accs[i] = acc
	}
	return accs, nil
}

// ExtraAgg is an auxiliary aggregate computed alongside the pivoted sums, at
// the final grouping granularity (all search types of a group folded
// together). Fold merges one event into the running value; the zero value of
// float64 seeds each group.
type ExtraAgg struct {
	Name string
	Fold func(acc float64, e *Event) float64
}

// Row is one output rollup row: the grouping-dimension values in request
// order plus the three pivoted sums. A nil sum means the group had no events
// of that bucket (written as NULL, not zero).
type Row struct {
	Dims           []*string
	TaggedSAP      *int64
	TaggedFollowOn *int64
	SAP            *int64
	Extras         []float64
}

// OutputColumns returns the column names of the rollup output in row-value
// order: grouping dimensions, the three search-type buckets, then extras.
func OutputColumns(groupBy []string, extras []ExtraAgg) []string {
	cols := make([]string, 0, len(groupBy)+numSearchTypes+len(extras))
	cols = append(cols, groupBy...)
	cols = append(cols, TypeTaggedSAP.String(), TypeTaggedFollowOn.String(), TypeSAP.String())
	for _, ex := range extras {
		cols = append(cols, ex.Name)
	}
	return cols
}

// Values flattens the row into writer-ready values aligned with
// OutputColumns. Nil dims and missing sums become nil (NULL).
func (r *Row) Values() []any {
	vals := make([]any, 0, len(r.Dims)+numSearchTypes+len(r.Extras))
	for _, d := range r.Dims {
		if d == nil {
			vals = append(vals, nil)
		} else {
			vals = append(vals, *d)
		}
	}
	for _, s := range []*int64{r.TaggedSAP, r.TaggedFollowOn, r.SAP} {
		if s == nil {
			vals = append(vals, nil)
		} else {
			vals = append(vals, *s)
		}
	}
	for _, ex := range r.Extras {
		vals = append(vals, ex)
	}
	return vals
}

// group is the accumulation state for one distinct grouping-key tuple.
type group struct {
	dims   []*string
	sums   [numSearchTypes]int64
	seen   [numSearchTypes]bool
	extras []float64
}

// Accumulator implements the grouped-sum stage: events fold into per-group,
// per-type sums keyed by their grouping-dimension tuple. It is not safe for
// concurrent use; parallel callers shard events across accumulators by group
// key so each tuple lands in exactly one.
type Accumulator struct {
	accs   []func(*Event) *string
	extras []ExtraAgg
	groups map[string]*group
	key    strings.Builder
}

// NewAccumulator builds an accumulator for a validated grouping-column list.
func NewAccumulator(groupBy []string, extras []ExtraAgg) (*Accumulator, error) {
	accs, err := ResolveColumns(groupBy)
	if err != nil {
		return nil, err
	}
	return &Accumulator{
		accs:   accs,
		extras: extras,
		groups: make(map[string]*group),
	}, nil
}

// Key returns the collision-free encoding of the event's grouping tuple.
// Values are length-prefixed so a separator occurring inside a value cannot
// merge two distinct tuples, and nil stays distinct from "".
func (a *Accumulator) Key(e *Event) string {
	a.key.Reset()
	for _, acc := range a.accs {
		v := acc(e)
		if v == nil {
			a.key.WriteByte('n')
			continue
		}
		a.key.WriteByte('v')
		a.key.WriteString(strconv.Itoa(len(*v)))
		a.key.WriteByte(':')
		a.key.WriteString(*v)
	}
	return a.key.String()
}

// Add folds one classified event into its group.
func (a *Accumulator) Add(e *Event) {
	k := a.Key(e)
	g, ok := a.groups[k]
	if !ok {
		g = &group{dims: make([]*string, len(a.accs))}
		for i, acc := range a.accs {
			g.dims[i] = acc(e)
		}
		if len(a.extras) > 0 {
			g.extras = make([]float64, len(a.extras))
		}
		a.groups[k] = g
	}
	g.sums[e.Type] += e.Count
	g.seen[e.Type] = true
	for i, ex := range a.extras {
		g.extras[i] = ex.Fold(g.extras[i], e)
	}
}

// Rows runs the pivot stage: each accumulated group becomes one output row
// with the three search-type buckets expanded into fixed columns. Row order
// is unspecified.
func (a *Accumulator) Rows() []Row {
	rows := make([]Row, 0, len(a.groups))
	for _, g := range a.groups {
		rows = append(rows, Row{
			Dims:           g.dims,
			TaggedSAP:      pivotSum(g, TypeTaggedSAP),
			TaggedFollowOn: pivotSum(g, TypeTaggedFollowOn),
			SAP:            pivotSum(g, TypeSAP),
			Extras:         g.extras,
		})
	}
	return rows
}

func pivotSum(g *group, t SearchType) *int64 {
	if !g.seen[t] {
		return nil
	}
	s := g.sums[t]
	return &s
}

// Aggregate groups classified events by the requested dimensions, sums the
// count per search type, and pivots the types into fixed columns: one row
// per distinct dimension tuple. An empty groupBy collapses to a single
// global-summary row (provided there is at least one event).
func Aggregate(events []Event, groupBy []string, extras []ExtraAgg) ([]Row, error) {
	acc, err := NewAccumulator(groupBy, extras)
	if err != nil {
		return nil, err
	}
	for i := range events {
		acc.Add(&events[i])
	}
	return acc.Rows(), nil
}

// AggregateParallel is Aggregate with the fold spread over worker
// accumulators. Events are sharded by the xxh3 hash of their grouping key,
// so every distinct tuple is owned by exactly one worker and the per-shard
// results concatenate without a merge step. Summation is associative and
// commutative; the output is invariant to shard boundaries and row order.
func AggregateParallel(ctx context.Context, events []Event, groupBy []string, extras []ExtraAgg, workers int) ([]Row, error) {
	if workers <= 1 || len(events) < 2*workers {
		return Aggregate(events, groupBy, extras)
	}

	if _, err := ResolveColumns(groupBy); err != nil {
		return nil, err
	}
	shards := make([]*Accumulator, workers)
	for i := range shards {
		// groupBy already validated above.
		shards[i], _ = NewAccumulator(groupBy, extras)
	}

	g, _ := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		acc := shards[w]
		mine := uint64(w)
		g.Go(func() error {
			// Each worker scans all events and keeps the ones whose
			// grouping key hashes into its shard. Key building uses the
			// worker's own accumulator, so there is no shared state.
			for i := range events {
				e := &events[i]
				if xxh3.HashString(acc.Key(e))%uint64(workers) != mine {
					continue
				}
				acc.Add(e)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []Row
	for _, acc := range shards {
		rows = append(rows, acc.Rows()...)
	}
	return rows, nil
}
