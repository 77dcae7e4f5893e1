// Package datadog emits rollup metrics over DogStatsD.
//
// It adapts the metrics.Backend interface to the official Datadog statsd
// client: metric labels become "key:value" tags, counters map to DogStatsD
// counts, and step durations map to histograms. The rest of the project
// depends only on metrics.Backend and can swap backends freely.
package datadog

import (
	"fmt"
	"sort"

	"github.com/DataDog/datadog-go/v5/statsd"

	"searchrollup/internal/metrics"
)

// statsdClient is the slice of *statsd.Client the backend uses. Tests
// substitute a recording fake.
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace is an optional prefix added to all metric names, e.g. "searchrollup.".
	Namespace string

	// GlobalTags are tags applied to every metric emitted by this backend,
	// e.g. []string{"env:prod", "service:searchrollup"}.
	GlobalTags []string
}

// Backend forwards rollup run counters and step durations to a local or
// remote Datadog agent. The same instance is intended to be installed as
// the global metrics backend via metrics.SetBackend.
type Backend struct {
	client statsdClient
}

var _ metrics.Backend = (*Backend)(nil)

// NewBackend dials the DogStatsD address in cfg. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend via a DogStatsD Count.
// Fractional deltas are truncated; the rollup only emits whole counts.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram implements metrics.Backend via a DogStatsD Histogram.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush closes the client, draining anything still buffered. Called once at
// process shutdown via metrics.Flush.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// labelsToTags converts labels into sorted "key:value" tag strings. Sorting
// keeps tag order stable across emissions of the same series.
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
