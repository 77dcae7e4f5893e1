// Package datasource defines the contract between the rollup job and its
// input locations. A Source hands out one reader per open; a snapshot (one
// submission date's dataset) is a list of Sources, typically one per part
// file.
package datasource

import (
	"context"
	"io"
)

// Source is a single openable input, e.g. one part file of a snapshot.
type Source interface {
	// Open returns a fresh reader over the input. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Path identifies the input for logs and error messages.
	Path() string
}
