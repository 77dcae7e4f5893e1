package rollup

import (
	"context"

	"searchrollup/internal/schema"
)

// DefaultGroupingColumns is the dimension set of the search dashboard
// rollup. It is the only caller-visible configuration surface of the core
// transformation.
var DefaultGroupingColumns = []string{
	"addon_version",
	"app_version",
	"country",
	"distribution_id",
	"engine",
	"locale",
	"search_cohort",
	"source",
	"submission_date",
}

// SearchAggregates runs the full pipeline over a snapshot of pings with the
// default dashboard grouping and no auxiliary aggregates.
func SearchAggregates(pings []schema.MainSummary) ([]Row, error) {
	return Run(context.Background(), pings, DefaultGroupingColumns, nil, 1)
}

// Run executes Explode → Classify → Aggregate over a snapshot. workers > 1
// parallelizes the aggregation fold; the result is identical either way.
func Run(ctx context.Context, pings []schema.MainSummary, groupBy []string, extras []ExtraAgg, workers int) ([]Row, error) {
	// Validate the grouping configuration before touching any data.
	if _, err := ResolveColumns(groupBy); err != nil {
		return nil, err
	}
	events, err := Explode(pings)
	if err != nil {
		return nil, err
	}
	events = Classify(events)
	return AggregateParallel(ctx, events, groupBy, extras, workers)
}
