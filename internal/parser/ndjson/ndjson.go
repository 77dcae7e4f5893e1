// Package ndjson streams main_summary pings out of newline-delimited JSON
// part files.
//
// Decoding uses encoding/json.Decoder over the raw reader rather than a
// line scanner, so records that happen to span lines (pretty-printed dumps)
// decode the same as strict NDJSON. Each decoded ping is normalized at this
// boundary (see schema.MainSummary.Normalize) before it is handed
// downstream.
//
// A record that fails to decode is an upstream contract violation and fails
// the whole stream; this job never silently drops input. The optional
// onParseErr callback observes the failure (for metrics) before the error is
// returned.
package ndjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"searchrollup/internal/schema"
)

// StreamPings decodes pings from r and sends them to out until EOF, a decode
// failure, or context cancellation. It returns the number of pings streamed.
// The caller owns the out channel and closes it after all sources finish.
func StreamPings(
	ctx context.Context,
	r io.Reader,
	out chan<- schema.MainSummary,
	onParseErr func(record int, err error),
) (int, error) {
	dec := json.NewDecoder(r)

	n := 0
	for {
		var m schema.MainSummary
		if err := dec.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			if onParseErr != nil {
				onParseErr(n+1, err)
			}
			return n, fmt.Errorf("ndjson: record %d: %w", n+1, err)
		}
		m.Normalize()

		select {
		case out <- m:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}
