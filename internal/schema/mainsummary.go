// Package schema defines the typed model for main_summary telemetry pings as
// consumed by the search rollup job.
//
// The package is the ingestion boundary: raw telemetry shapes (notably the
// positional active_addons tuples) are re-modeled here into named-field
// structs so that nothing downstream ever indexes into a ping by position.
// Only the fields the rollup reads are modeled; everything else in a ping is
// ignored rather than validated.
package schema

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SubmissionDateLayout is the compact date format used by telemetry
// partitions, e.g. "20170801".
const SubmissionDateLayout = "20060102"

// SearchCount is one (engine, source, count) triple from a ping's
// search_counts field: searches against one engine from one UI surface
// during one session.
type SearchCount struct {
	Engine string `json:"engine"`
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// Addon is one entry of a ping's active_addons list. On the wire each entry
// is a fixed-position array with the addon ID at index 0 and its version at
// index 5; UnmarshalJSON hides that so the rest of the pipeline only ever
// sees named fields.
type Addon struct {
	ID      string
	Version string
}

// Wire positions of the fields we read out of an active_addons tuple.
const (
	addonIDIndex      = 0
	addonVersionIndex = 5
)

// UnmarshalJSON decodes a positional active_addons tuple. Entries that are
// not arrays, or whose ID/version slots are missing or non-string, decode to
// a Addon with empty fields rather than failing the record: addon lookup is
// defined to be null-safe, never an error.
func (a *Addon) UnmarshalJSON(b []byte) error {
	var tuple []any
	if err := json.Unmarshal(b, &tuple); err != nil {
		*a = Addon{}
		return nil
	}
	var out Addon
	if len(tuple) > addonIDIndex {
		if s, ok := tuple[addonIDIndex].(string); ok {
			out.ID = s
		}
	}
	if len(tuple) > addonVersionIndex {
		if s, ok := tuple[addonVersionIndex].(string); ok {
			out.Version = s
		}
	}
	*a = out
	return nil
}

// MainSummary is one client search-session snapshot. Client attributes are
// nullable in telemetry, so they are pointers; nil and "" remain distinct
// grouping values downstream.
type MainSummary struct {
	ClientID       *string       `json:"client_id"`
	SubmissionDate *string       `json:"submission_date"`
	AppVersion     *string       `json:"app_version"`
	Country        *string       `json:"country"`
	DistributionID *string       `json:"distribution_id"`
	Locale         *string       `json:"locale"`
	SearchCohort   *string       `json:"search_cohort"`
	SearchCounts   []SearchCount `json:"search_counts"`
	ActiveAddons   []Addon       `json:"active_addons"`
}

// normalizer recomposes strings to NFC and strips invisible format runes
// (zero-width joiners and friends) that occasionally leak into telemetry
// string fields. Byte-level variants of one logical value must not split
// rollup groups.
var normalizer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Cf)),
	norm.NFC,
)

// NormalizeValue canonicalizes a single string dimension value: trim outer
// whitespace, then apply the unicode normalizer. The input is returned
// unchanged when the transform fails (never expected for valid UTF-8).
func NormalizeValue(s string) string {
	s = strings.TrimSpace(s)
	if out, _, err := transform.String(normalizer, s); err == nil {
		return out
	}
	return s
}

// Normalize canonicalizes every string dimension of the ping in place,
// including engine/source keys inside search_counts. Counts and addon data
// are left untouched.
func (m *MainSummary) Normalize() {
	for _, p := range []**string{
		&m.ClientID, &m.SubmissionDate, &m.AppVersion, &m.Country,
		&m.DistributionID, &m.Locale, &m.SearchCohort,
	} {
		if *p != nil {
			v := NormalizeValue(**p)
			*p = &v
		}
	}
	for i := range m.SearchCounts {
		m.SearchCounts[i].Engine = NormalizeValue(m.SearchCounts[i].Engine)
		m.SearchCounts[i].Source = NormalizeValue(m.SearchCounts[i].Source)
	}
}
