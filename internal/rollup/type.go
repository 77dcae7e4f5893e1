package rollup

import "strings"

// SearchType buckets one search event by how it reached the engine. The set
// is closed: the pivot stage expands exactly these three values into output
// columns, so an unexpected fourth bucket can never silently appear as a new
// column.
type SearchType uint8

const (
	// TypeTaggedSAP is a search carrying a partner code, issued directly
	// from a search access point (source prefixed "sap:").
	TypeTaggedSAP SearchType = iota
	// TypeTaggedFollowOn is a downstream query carrying a partner code
	// (source prefixed "follow-on:").
	TypeTaggedFollowOn
	// TypeSAP is an organic search from the browser UI, no partner code.
	TypeSAP

	numSearchTypes = 3
)

// Source prefixes that mark partner-coded traffic. Matching is
// case-sensitive and ordered: "sap:" wins over "follow-on:".
const (
	taggedSAPPrefix      = "sap:"
	taggedFollowOnPrefix = "follow-on:"
)

// String returns the column name used for this bucket in the rollup output.
func (t SearchType) String() string {
	switch t {
	case TypeTaggedSAP:
		return "tagged-sap"
	case TypeTaggedFollowOn:
		return "tagged-follow-on"
	case TypeSAP:
		return "sap"
	}
	return "unknown"
}

// ClassifySource derives the search type for a search_counts source value.
// It is total: every input maps to exactly one bucket.
func ClassifySource(source string) SearchType {
	switch {
	case strings.HasPrefix(source, taggedSAPPrefix):
		return TypeTaggedSAP
	case strings.HasPrefix(source, taggedFollowOnPrefix):
		return TypeTaggedFollowOn
	default:
		return TypeSAP
	}
}
