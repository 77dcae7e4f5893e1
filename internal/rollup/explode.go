// Package rollup implements the daily search rollup transformation: explode
// per-ping search_counts into per-(engine, source) events, classify each
// event into a search-type bucket, and aggregate counts into one row per
// combination of grouping dimensions with one column per bucket.
//
// The three stages are pure functions over in-memory slices and run strictly
// in sequence: Explode → Classify → Aggregate. No stage mutates shared
// state, and no output ordering is guaranteed between rows.
package rollup

import (
	"errors"
	"fmt"

	"searchrollup/internal/schema"
)

// MaxClientSearchCount is the sanity ceiling for a single search_counts
// entry. Entries at or above it are machine noise, not user behavior, and
// are dropped entirely rather than clamped.
const MaxClientSearchCount = 10000

// ErrMalformedSearchCount reports a search_counts entry that violates the
// upstream telemetry contract (empty engine or source, or a negative count).
// The run fails outright rather than silently dropping or coercing the
// entry: malformed telemetry is worth surfacing loudly.
var ErrMalformedSearchCount = errors.New("malformed search_counts entry")

// Event is one exploded search event: the ping's client attributes joined
// with exactly one (engine, source, count) triple. Type and AddonVersion are
// zero until Classify runs.
type Event struct {
	ClientID       *string
	SubmissionDate *string
	AppVersion     *string
	Country        *string
	DistributionID *string
	Locale         *string
	SearchCohort   *string

	Engine string
	Source string
	Count  int64

	// Carried from the ping for Classify; not part of the rollup output.
	ActiveAddons []schema.Addon

	Type         SearchType
	AddonVersion *string
}

// Explode flattens pings into events, one per surviving search_counts entry.
// A ping with no search_counts contributes nothing; entries with
// count >= MaxClientSearchCount are filtered out. Any malformed entry fails
// the whole run with ErrMalformedSearchCount.
func Explode(pings []schema.MainSummary) ([]Event, error) {
	out := make([]Event, 0, len(pings))
	for i := range pings {
		var err error
		out, err = ExplodeOne(&pings[i], out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExplodeOne appends the events of a single ping to dst and returns the
// extended slice. It is the streaming building block behind Explode.
func ExplodeOne(p *schema.MainSummary, dst []Event) ([]Event, error) {
	for i, sc := range p.SearchCounts {
		if sc.Engine == "" || sc.Source == "" || sc.Count < 0 {
			return dst, fmt.Errorf(
				"%w: entry %d (engine=%q source=%q count=%d)",
				ErrMalformedSearchCount, i, sc.Engine, sc.Source, sc.Count,
			)
		}
		if sc.Count >= MaxClientSearchCount {
			continue
		}
		dst = append(dst, Event{
			ClientID:       p.ClientID,
			SubmissionDate: p.SubmissionDate,
			AppVersion:     p.AppVersion,
			Country:        p.Country,
			DistributionID: p.DistributionID,
			Locale:         p.Locale,
			SearchCohort:   p.SearchCohort,
			Engine:         sc.Engine,
			Source:         sc.Source,
			Count:          sc.Count,
			ActiveAddons:   p.ActiveAddons,
		})
	}
	return dst, nil
}
