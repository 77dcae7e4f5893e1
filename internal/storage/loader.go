// This file implements a generic, batched writer that drains rollup rows
// from a channel and invokes a provided bulk-insert function per batch.
// Backends implement CopyFn with their most efficient primitive (Postgres
// COPY, SQLite transactional INSERT, shard files for the file backend).
package storage

import (
	"context"
	"fmt"
	"log"
	"time"
)

// CopyFn abstracts a backend's bulk insert capability. Implementations
// insert the provided rows (aligned to 'columns' order) and return the
// number of rows written. The function should cancel promptly when ctx is
// done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from 'in', groups them into batches of
// 'batchSize', and calls copyFn for each non-empty batch. It returns the
// total number of rows reported written and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled. A short progress
// line is logged per successful flush.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}

	var (
		total   int64
		batches int64
		batch   = make([][]any, 0, batchSize)
		start   = time.Now()
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		batches++
		log.Printf("writer: batch #%d rows=%d total=%d elapsed=%s",
			batches, n, total, time.Since(start).Truncate(time.Millisecond))
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
