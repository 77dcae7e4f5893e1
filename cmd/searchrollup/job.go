// Package main wires the rollup end-to-end: snapshot reading, the
// explode/classify/aggregate core, and batched loading into the configured
// storage backend. This file keeps the CLI layer thin: it depends only on
// storage-agnostic interfaces and never imports database drivers or
// backend-specific packages directly.
package main

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"searchrollup/internal/config"
	"searchrollup/internal/datasource"
	"searchrollup/internal/datasource/file"
	"searchrollup/internal/metrics"
	"searchrollup/internal/parser/ndjson"
	"searchrollup/internal/rollup"
	"searchrollup/internal/schema"
	"searchrollup/internal/storage"
)

// counters holds cross-goroutine statistics for a rollup run.
//
// All fields are updated atomically; use the helper methods when possible
// instead of manipulating counters directly.
type counters struct {
	pingsRead      atomic.Int64 // pings decoded from the snapshot
	parseErrors    atomic.Int64 // records the reader could not decode
	eventsExploded atomic.Int64 // search events after explode
	droppedCeiling atomic.Int64 // entries discarded for hitting the count ceiling
	rowsWritten    atomic.Int64 // aggregated rows flushed to storage
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newRepositoryFn = func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return storage.New(ctx, cfg)
	}

	snapshotFn = func(dir string) ([]datasource.Source, error) {
		parts, err := file.Snapshot(dir)
		if err != nil {
			return nil, err
		}
		out := make([]datasource.Source, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	}
)

// run executes a full snapshot → explode → classify → aggregate → storage
// rollup for one submission date.
//
// A malformed ping record or search count entry fails the whole run: a daily
// rollup with silently missing counts is worse than a rerun after the bad
// input is fixed.
//
// Stats reported:
//
//   - pings_read:      records decoded from the snapshot part files
//   - parse_errors:    records the reader could not decode (always fatal)
//   - events_exploded: per-engine/source search events after explode
//   - dropped_ceiling: entries discarded for an implausibly large count
//   - rows_written:    aggregated rows flushed to storage
func run(ctx context.Context, job config.Job) error {
	var stats counters

	pings, err := timedStage(job.Name, "reader", func() ([]schema.MainSummary, error) {
		return readSnapshot(ctx, job, &stats)
	})
	if err != nil {
		return err
	}
	events, dropped := countSearchEntries(pings)
	stats.eventsExploded.Store(events)
	stats.droppedCeiling.Store(dropped)

	groupBy := job.Rollup.GroupBy
	if len(groupBy) == 0 {
		groupBy = rollup.DefaultGroupingColumns
	}

	rows, err := timedStage(job.Name, "aggregate", func() ([]rollup.Row, error) {
		return rollup.Run(ctx, pings, groupBy, nil, job.Rollup.Workers)
	})
	if err != nil {
		return err
	}

	written, err := timedStage(job.Name, "writer", func() (int64, error) {
		return writeRows(ctx, job, groupBy, rows)
	})
	if err != nil {
		return err
	}
	stats.rowsWritten.Store(written)

	logSummary(job.Name, &stats, len(rows))
	return nil
}

// timedStage runs fn and records its duration and outcome under the given
// stage name.
func timedStage[T any](jobName, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.RecordStep(jobName, stage, err, time.Since(start))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: %w", stage, err)
	}
	return v, nil
}

// readSnapshot streams every part file of the input snapshot into memory.
// Records are normalized as they are decoded. Any decode failure aborts the
// run.
func readSnapshot(ctx context.Context, job config.Job, stats *counters) ([]schema.MainSummary, error) {
	dir := job.Input.Path()
	sources, err := snapshotFn(dir)
	if err != nil {
		return nil, err
	}
	log.Printf("reader: snapshot=%s parts=%d", dir, len(sources))

	out := make(chan schema.MainSummary, job.Runtime.ChannelBuffer)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(out)
		for _, src := range sources {
			rc, err := src.Open(ctx)
			if err != nil {
				return err
			}
			n, err := ndjson.StreamPings(ctx, rc, out, func(record int, perr error) {
				stats.parseErrors.Add(1)
				log.Printf("reader: %s record %d: %v", src.Path(), record, perr)
			})
			rc.Close()
			stats.pingsRead.Add(int64(n))
			if err != nil {
				return fmt.Errorf("%s: %w", src.Path(), err)
			}
		}
		return nil
	})

	var pings []schema.MainSummary
	for p := range out {
		pings = append(pings, p)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pings, nil
}

// countSearchEntries splits snapshot search count entries into those explode
// will emit as events and those discarded for hitting the per-client ceiling.
// Explode itself skips the latter silently; the runner surfaces the counts
// for the summary.
func countSearchEntries(pings []schema.MainSummary) (events, dropped int64) {
	for i := range pings {
		for _, sc := range pings[i].SearchCounts {
			if sc.Count >= rollup.MaxClientSearchCount {
				dropped++
			} else {
				events++
			}
		}
	}
	return events, dropped
}

// writeRows opens the configured repository, applies the save mode, and
// flushes aggregated rows in batches.
func writeRows(ctx context.Context, job config.Job, groupBy []string, rows []rollup.Row) (int64, error) {
	columns := rollup.OutputColumns(groupBy, nil)

	repo, err := newRepositoryFn(ctx, storageConfig(job, groupBy))
	if err != nil {
		return 0, fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	if err := repo.Prepare(ctx); err != nil {
		return 0, err
	}

	// LoadBatches and the feeder share a derived context so a write error
	// unblocks the feeder; Wait returns only after both have exited.
	g, gctx := errgroup.WithContext(ctx)
	in := make(chan []any, job.Runtime.ChannelBuffer)
	g.Go(func() error {
		defer close(in)
		for i := range rows {
			select {
			case in <- rows[i].Values():
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var written int64
	g.Go(func() error {
		var err error
		written, err = storage.LoadBatches(gctx, columns, in, job.Runtime.BatchSize, repo.CopyFrom)
		return err
	})
	if err := g.Wait(); err != nil {
		return written, err
	}
	metrics.RecordBatches(job.Name, (written+int64(job.Runtime.BatchSize)-1)/int64(job.Runtime.BatchSize))
	return written, nil
}

// storageConfig maps the job config onto a storage.Config, including the
// destination schema derived from the grouping columns.
func storageConfig(job config.Job, groupBy []string) storage.Config {
	columns := rollup.OutputColumns(groupBy, nil)
	sch := make([]storage.Column, len(columns))
	for i, c := range columns {
		t := storage.ColumnText
		switch c {
		case "tagged-sap", "tagged-follow-on", "sap":
			t = storage.ColumnInteger
		}
		sch[i] = storage.Column{Name: c, Type: t}
	}

	return storage.Config{
		Kind:       job.Storage.Kind,
		DSN:        job.Storage.DB.DSN,
		Table:      job.Storage.DB.Table,
		Schema:     sch,
		SaveMode:   storage.SaveMode(job.Storage.SaveMode),
		Path:       job.Storage.File.Path(job.Input.SubmissionDate),
		Partitions: job.Storage.File.Partitions,
	}
}

// logSummary prints final aggregated statistics for the run and mirrors them
// to the metrics backend.
func logSummary(jobName string, c *counters, groups int) {
	pings := c.pingsRead.Load()
	parseErrs := c.parseErrors.Load()
	events := c.eventsExploded.Load()
	dropped := c.droppedCeiling.Load()
	written := c.rowsWritten.Load()

	log.Printf(
		"summary: pings_read=%d parse_errors=%d events=%d dropped_ceiling=%d groups=%d rows_written=%d",
		pings, parseErrs, events, dropped, groups, written,
	)

	metrics.RecordRow(jobName, "pings_read", pings)
	metrics.RecordRow(jobName, "parse_errors", parseErrs)
	metrics.RecordRow(jobName, "events_exploded", events)
	metrics.RecordRow(jobName, "dropped_ceiling", dropped)
	metrics.RecordRow(jobName, "rows_written", written)
}
