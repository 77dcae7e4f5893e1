package rollup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"testing"

	"searchrollup/internal/schema"
)

func strp(s string) *string { return &s }

// ping builds a minimal MainSummary fixture.
func ping(date, country string, counts []schema.SearchCount, addons []schema.Addon) schema.MainSummary {
	return schema.MainSummary{
		SubmissionDate: strp(date),
		Country:        strp(country),
		SearchCounts:   counts,
		ActiveAddons:   addons,
	}
}

// rowKey renders a row into a canonical string so sets of rows can be
// compared independent of output order.
func rowKey(r Row) string {
	var b strings.Builder
	for _, d := range r.Dims {
		if d == nil {
			b.WriteString("<nil>")
		} else {
			fmt.Fprintf(&b, "%q", *d)
		}
		b.WriteByte('|')
	}
	for _, s := range []*int64{r.TaggedSAP, r.TaggedFollowOn, r.SAP} {
		if s == nil {
			b.WriteString("<nil>|")
		} else {
			fmt.Fprintf(&b, "%d|", *s)
		}
	}
	fmt.Fprintf(&b, "%v", r.Extras)
	return b.String()
}

func sortedKeys(rows []Row) []string {
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = rowKey(r)
	}
	sort.Strings(keys)
	return keys
}

func TestClassifySource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		want   SearchType
	}{
		{"sap:urlbar", TypeTaggedSAP},
		{"follow-on:abc", TypeTaggedFollowOn},
		{"urlbar", TypeSAP},
		{"", TypeSAP},
		// Case-sensitive: uppercase prefixes do not tag.
		{"SAP:urlbar", TypeSAP},
		{"Follow-on:abc", TypeSAP},
		// Priority order: "sap:" is checked before "follow-on:".
		{"sap:follow-on:x", TypeTaggedSAP},
		// Prefix, not containment.
		{"xsap:urlbar", TypeSAP},
	}
	for _, tc := range tests {
		if got := ClassifySource(tc.source); got != tc.want {
			t.Errorf("ClassifySource(%q) = %s, want %s", tc.source, got, tc.want)
		}
	}
}

func TestSearchTypeString(t *testing.T) {
	t.Parallel()

	want := map[SearchType]string{
		TypeTaggedSAP:      "tagged-sap",
		TypeTaggedFollowOn: "tagged-follow-on",
		TypeSAP:            "sap",
	}
	for typ, name := range want {
		if typ.String() != name {
			t.Errorf("SearchType(%d).String() = %q, want %q", typ, typ.String(), name)
		}
	}
}

func TestSearchAddonVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		addons []schema.Addon
		want   *string
	}{
		{
			name: "match after other addons",
			addons: []schema.Addon{
				{ID: "other@x", Version: "1.0"},
				{ID: FollowOnSearchAddonID, Version: "2.3"},
			},
			want: strp("2.3"),
		},
		{
			name: "first match wins",
			addons: []schema.Addon{
				{ID: FollowOnSearchAddonID, Version: "0.9.5"},
				{ID: FollowOnSearchAddonID, Version: "0.9.6"},
			},
			want: strp("0.9.5"),
		},
		{name: "empty list", addons: []schema.Addon{}, want: nil},
		{name: "nil list", addons: nil, want: nil},
		{
			name:   "no match",
			addons: []schema.Addon{{ID: "other@x", Version: "1.0"}},
			want:   nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SearchAddonVersion(tc.addons)
			switch {
			case got == nil && tc.want == nil:
			case got == nil || tc.want == nil:
				t.Fatalf("version = %v, want %v", got, tc.want)
			case *got != *tc.want:
				t.Fatalf("version = %q, want %q", *got, *tc.want)
			}
		})
	}
}

// TestExplode_Cardinality verifies that the number of exploded events equals
// the number of search_counts entries under the ceiling, and that entries at
// or above the ceiling vanish rather than being clamped.
func TestExplode_Cardinality(t *testing.T) {
	t.Parallel()

	pings := []schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "urlbar", Count: 1},
			{Engine: "bing", Source: "urlbar", Count: MaxClientSearchCount - 1},
			{Engine: "bing", Source: "urlbar", Count: MaxClientSearchCount},
			{Engine: "ddg", Source: "searchbar", Count: 50000},
		}, nil),
		ping("20170801", "DE", nil, nil),
		ping("20170801", "FR", []schema.SearchCount{}, nil),
	}

	events, err := Explode(pings)
	if err != nil {
		t.Fatalf("Explode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("exploded %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Count >= MaxClientSearchCount {
			t.Fatalf("event with count %d survived the ceiling", e.Count)
		}
	}
	// Client attributes ride along on every event.
	if *events[0].Country != "US" || *events[0].SubmissionDate != "20170801" {
		t.Fatalf("attributes not carried: %+v", events[0])
	}
}

func TestExplode_ZeroCountSurvives(t *testing.T) {
	t.Parallel()

	events, err := Explode([]schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{{Engine: "google", Source: "urlbar", Count: 0}}, nil),
	})
	if err != nil {
		t.Fatalf("Explode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("exploded %d events, want 1", len(events))
	}
}

// TestExplode_MalformedEntry verifies the documented policy: a single
// malformed search_counts entry fails the whole run.
func TestExplode_MalformedEntry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry schema.SearchCount
	}{
		{name: "empty engine", entry: schema.SearchCount{Source: "urlbar", Count: 1}},
		{name: "empty source", entry: schema.SearchCount{Engine: "google", Count: 1}},
		{name: "negative count", entry: schema.SearchCount{Engine: "google", Source: "urlbar", Count: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Explode([]schema.MainSummary{
				ping("20170801", "US", []schema.SearchCount{tc.entry}, nil),
			})
			if !errors.Is(err, ErrMalformedSearchCount) {
				t.Fatalf("err = %v, want ErrMalformedSearchCount", err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	events, err := Explode([]schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "sap:urlbar", Count: 3},
			{Engine: "google", Source: "follow-on:abc", Count: 2},
			{Engine: "bing", Source: "urlbar", Count: 5},
		}, []schema.Addon{{ID: FollowOnSearchAddonID, Version: "0.9.6"}}),
	})
	if err != nil {
		t.Fatalf("Explode: %v", err)
	}
	events = Classify(events)

	wantTypes := []SearchType{TypeTaggedSAP, TypeTaggedFollowOn, TypeSAP}
	for i, e := range events {
		if e.Type != wantTypes[i] {
			t.Errorf("event %d type = %s, want %s", i, e.Type, wantTypes[i])
		}
		if e.AddonVersion == nil || *e.AddonVersion != "0.9.6" {
			t.Errorf("event %d addon_version = %v, want 0.9.6", i, e.AddonVersion)
		}
	}
}

func TestResolveColumns_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		groupBy []string
	}{
		{name: "unknown column", groupBy: []string{"country", "no_such_column"}},
		{name: "type is not a dimension", groupBy: []string{"type"}},
		{name: "count is not a dimension", groupBy: []string{"count"}},
		{name: "duplicate column", groupBy: []string{"country", "country"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ResolveColumns(tc.groupBy); !errors.Is(err, ErrUnknownColumn) {
				t.Fatalf("err = %v, want ErrUnknownColumn", err)
			}
		})
	}

	if _, err := ResolveColumns(DefaultGroupingColumns); err != nil {
		t.Fatalf("default grouping columns must resolve: %v", err)
	}
}

// fixtureEvents returns a classified mixed fixture plus the expected total
// count after ceiling filtering.
func fixtureEvents(t *testing.T) ([]Event, int64) {
	t.Helper()

	pings := []schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "sap:urlbar", Count: 3},
			{Engine: "google", Source: "follow-on:abc", Count: 2},
			{Engine: "bing", Source: "urlbar", Count: 7},
		}, nil),
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "sap:urlbar", Count: 5},
			{Engine: "bing", Source: "urlbar", Count: 60000},
		}, []schema.Addon{{ID: FollowOnSearchAddonID, Version: "0.9.6"}}),
		ping("20170801", "DE", []schema.SearchCount{
			{Engine: "ddg", Source: "searchbar", Count: 11},
		}, nil),
	}
	events, err := Explode(pings)
	if err != nil {
		t.Fatalf("Explode: %v", err)
	}
	var total int64
	for _, e := range events {
		total += e.Count
	}
	return Classify(events), total
}

// TestAggregate_SumConservation verifies that the three pivoted columns
// summed across all rows equal the total retained count.
func TestAggregate_SumConservation(t *testing.T) {
	t.Parallel()

	events, total := fixtureEvents(t)
	rows, err := Aggregate(events, []string{"country", "engine", "source"}, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	var got int64
	for _, r := range rows {
		for _, s := range []*int64{r.TaggedSAP, r.TaggedFollowOn, r.SAP} {
			if s != nil {
				got += *s
			}
		}
	}
	if got != total {
		t.Fatalf("pivoted sum = %d, want %d", got, total)
	}
}

// TestAggregate_GroupingUniqueness verifies that no two output rows share
// the same grouping tuple.
func TestAggregate_GroupingUniqueness(t *testing.T) {
	t.Parallel()

	events, _ := fixtureEvents(t)
	rows, err := Aggregate(events, []string{"country", "engine"}, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	seen := map[string]bool{}
	for _, r := range rows {
		var b strings.Builder
		for _, d := range r.Dims {
			if d == nil {
				b.WriteString("<nil>|")
			} else {
				fmt.Fprintf(&b, "%q|", *d)
			}
		}
		if seen[b.String()] {
			t.Fatalf("duplicate grouping tuple %s", b.String())
		}
		seen[b.String()] = true
	}
}

func TestAggregate_EmptyGroupByCollapses(t *testing.T) {
	t.Parallel()

	events, total := fixtureEvents(t)
	rows, err := Aggregate(events, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 global row", len(rows))
	}
	r := rows[0]
	var got int64
	for _, s := range []*int64{r.TaggedSAP, r.TaggedFollowOn, r.SAP} {
		if s != nil {
			got += *s
		}
	}
	if got != total {
		t.Fatalf("global row sum = %d, want %d", got, total)
	}
}

// TestAggregate_NullDistinctFromEmpty verifies that a nil dimension value
// and an empty string form different groups.
func TestAggregate_NullDistinctFromEmpty(t *testing.T) {
	t.Parallel()

	empty := ""
	events := []Event{
		{Country: nil, Engine: "google", Source: "urlbar", Count: 1, Type: TypeSAP},
		{Country: &empty, Engine: "google", Source: "urlbar", Count: 1, Type: TypeSAP},
	}
	rows, err := Aggregate(events, []string{"country"}, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (nil and empty must not merge)", len(rows))
	}
}

func TestAggregate_ExtraAgg(t *testing.T) {
	t.Parallel()

	events, _ := fixtureEvents(t)
	extras := []ExtraAgg{{
		Name: "event_count",
		Fold: func(acc float64, _ *Event) float64 { return acc + 1 },
	}}
	rows, err := Aggregate(events, []string{"country"}, extras)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	var total float64
	for _, r := range rows {
		if len(r.Extras) != 1 {
			t.Fatalf("row extras = %v, want one value", r.Extras)
		}
		total += r.Extras[0]
	}
	// Five events survive the ceiling in the fixture.
	if total != 5 {
		t.Fatalf("event_count total = %v, want 5", total)
	}
}

// TestAggregateParallel_MatchesSequential verifies shard invariance: the
// parallel fold produces the same row set as the sequential one.
func TestAggregateParallel_MatchesSequential(t *testing.T) {
	t.Parallel()

	events, _ := fixtureEvents(t)
	want, err := Aggregate(events, []string{"country", "engine", "source"}, nil)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for _, workers := range []int{1, 2, 3, 8} {
		got, err := AggregateParallel(context.Background(), events, []string{"country", "engine", "source"}, nil, workers)
		if err != nil {
			t.Fatalf("AggregateParallel(workers=%d): %v", workers, err)
		}
		if !reflect.DeepEqual(sortedKeys(got), sortedKeys(want)) {
			t.Fatalf("workers=%d rows diverge:\n got %v\nwant %v", workers, sortedKeys(got), sortedKeys(want))
		}
	}
}

// TestSearchAggregates_EndToEnd is the worked example from the job's
// contract: one ping, two surviving entries, one output row with the
// follow-on count split out and no organic searches.
func TestSearchAggregates_EndToEnd(t *testing.T) {
	t.Parallel()

	pings := []schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "sap:urlbar", Count: 3},
			{Engine: "google", Source: "follow-on:abc", Count: 2},
			{Engine: "bing", Source: "urlbar", Count: 50000},
		}, nil),
	}

	rows, err := SearchAggregates(pings)
	if err != nil {
		t.Fatalf("SearchAggregates: %v", err)
	}
	// Two surviving events differ in source, so the default grouping (which
	// includes source) yields two rows; the bing row was dropped entirely.
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	cols := DefaultGroupingColumns
	dim := func(r Row, name string) *string {
		for i, c := range cols {
			if c == name {
				return r.Dims[i]
			}
		}
		t.Fatalf("column %s not in grouping", name)
		return nil
	}

	for _, r := range rows {
		if got := dim(r, "country"); got == nil || *got != "US" {
			t.Fatalf("country = %v, want US", got)
		}
		if got := dim(r, "submission_date"); got == nil || *got != "20170801" {
			t.Fatalf("submission_date = %v, want 20170801", got)
		}
		if got := dim(r, "engine"); got == nil || *got != "google" {
			t.Fatalf("engine = %v, want google", got)
		}
		if r.SAP != nil {
			t.Fatalf("sap = %d, want null", *r.SAP)
		}
		switch *dim(r, "source") {
		case "sap:urlbar":
			if r.TaggedSAP == nil || *r.TaggedSAP != 3 || r.TaggedFollowOn != nil {
				t.Fatalf("sap:urlbar row = %+v, want tagged-sap=3 only", r)
			}
		case "follow-on:abc":
			if r.TaggedFollowOn == nil || *r.TaggedFollowOn != 2 || r.TaggedSAP != nil {
				t.Fatalf("follow-on row = %+v, want tagged-follow-on=2 only", r)
			}
		default:
			t.Fatalf("unexpected source %q", *dim(r, "source"))
		}
	}
}

// TestRun_Idempotence verifies that two runs over the same snapshot produce
// identical row sets regardless of order.
func TestRun_Idempotence(t *testing.T) {
	t.Parallel()

	pings := []schema.MainSummary{
		ping("20170801", "US", []schema.SearchCount{
			{Engine: "google", Source: "sap:urlbar", Count: 3},
			{Engine: "bing", Source: "urlbar", Count: 4},
		}, nil),
		ping("20170801", "DE", []schema.SearchCount{
			{Engine: "google", Source: "follow-on:x", Count: 9},
		}, []schema.Addon{{ID: FollowOnSearchAddonID, Version: "1.2"}}),
	}

	first, err := Run(context.Background(), pings, DefaultGroupingColumns, nil, 4)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), pings, DefaultGroupingColumns, nil, 2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(sortedKeys(first), sortedKeys(second)) {
		t.Fatalf("runs diverge:\n first %v\nsecond %v", sortedKeys(first), sortedKeys(second))
	}
}

func TestOutputColumnsAndValues(t *testing.T) {
	t.Parallel()

	extras := []ExtraAgg{{Name: "event_count", Fold: func(a float64, _ *Event) float64 { return a + 1 }}}
	cols := OutputColumns([]string{"country", "engine"}, extras)
	want := []string{"country", "engine", "tagged-sap", "tagged-follow-on", "sap", "event_count"}
	if !reflect.DeepEqual(cols, want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}

	three := int64(3)
	r := Row{
		Dims:      []*string{strp("US"), nil},
		TaggedSAP: &three,
		Extras:    []float64{1},
	}
	vals := r.Values()
	if len(vals) != len(cols) {
		t.Fatalf("values len = %d, want %d", len(vals), len(cols))
	}
	if vals[0] != "US" || vals[1] != nil || vals[2] != int64(3) || vals[3] != nil || vals[4] != nil || vals[5] != float64(1) {
		t.Fatalf("values = %v", vals)
	}
}
