// Package config defines the canonical, JSON-serializable configuration model
// for the rollup application. It is intentionally small, explicit, and
// dependency-free so that jobs can be loaded from disk (or assembled from
// flags) and passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in job files
//     under configs/jobs/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "job":     "search-rollup-daily",
//	  "input":   { "root": "/data", "submission_date": "20250301" },
//	  "rollup":  { "group_by": ["engine", "country"] },
//	  "storage": { "kind": "sqlite", "save_mode": "overwrite",
//	               "db": { "dsn": "rollup.db", "table": "search_aggregates" } },
//	  "metrics": { "backend": "prometheus",
//	               "options": { "pushgateway_url": "http://pushgateway:9091" } }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Version is the dataset version of the rollup output. It appears in the
// output path as a "v3" segment.
const Version = 3

// Default input dataset coordinates.
const (
	DefaultBucket       = "telemetry-parquet"
	DefaultInputPrefix  = "main_summary/v4"
	DefaultOutputPrefix = "search_aggregates"
)

// Job describes a full rollup run in JSON. It is the top-level object decoded
// from a job file (e.g., configs/jobs/*.json).
type Job struct {
	// Name identifies the run for logging and metrics labeling.
	Name string `json:"job"`

	// Input describes where the daily ping snapshot comes from.
	Input Input `json:"input"`

	// Rollup configures the aggregation itself.
	Rollup Rollup `json:"rollup"`

	// Storage describes where aggregated rows are written.
	Storage Storage       `json:"storage"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// Input identifies the daily snapshot to roll up. Bucket and Prefix default
// to the canonical ping dataset when left empty.
type Input struct {
	// Root is the local filesystem directory that holds bucket directories.
	Root string `json:"root"`

	// Bucket names the bucket directory under Root.
	Bucket string `json:"bucket"`

	// Prefix is the dataset path inside the bucket, including its version
	// segment (e.g. "main_summary/v4").
	Prefix string `json:"prefix"`

	// SubmissionDate selects the daily partition, formatted yyyymmdd.
	SubmissionDate string `json:"submission_date"`
}

// Path returns the snapshot directory for the configured date:
//
//	<root>/<bucket>/<prefix>/submission_date_s3=<date>
func (in Input) Path() string {
	return filepath.Join(in.Root, in.Bucket, in.Prefix, "submission_date_s3="+in.SubmissionDate)
}

// Rollup configures the aggregation step.
type Rollup struct {
	// GroupBy lists the grouping columns. Empty means the default set; an
	// explicit empty list cannot be expressed in JSON and is treated as the
	// default too.
	GroupBy []string `json:"group_by"`

	// Workers caps aggregation parallelism. Zero or one means sequential.
	Workers int `json:"workers"`
}

// Storage selects the sink used to persist aggregated rows.
type Storage struct {
	// Kind selects the storage implementation: "filepart", "postgres", "sqlite".
	Kind string `json:"kind"`

	// SaveMode controls behavior when the destination already exists:
	// "error" (default), "overwrite", or "append".
	SaveMode string `json:"save_mode"`

	// DB carries options for database-backed kinds.
	DB DBConfig `json:"db"`

	// File carries options for the "filepart" kind.
	File FileConfig `json:"file"`
}

// DBConfig configures a database sink.
type DBConfig struct {
	// DSN is the connection string (pgx URL for postgres, file path or
	// file: URI for sqlite).
	DSN string `json:"dsn"`

	// Table is the destination table name, optionally schema-qualified for
	// postgres (e.g. "public.search_aggregates").
	Table string `json:"table"`
}

// FileConfig configures the partitioned file sink. The destination directory
// is derived from the bucket layout plus the job's submission date.
type FileConfig struct {
	// Root is the local filesystem directory that holds bucket directories.
	Root string `json:"root"`

	// Bucket names the bucket directory under Root.
	Bucket string `json:"bucket"`

	// Prefix is the dataset path inside the bucket, without a version
	// segment (e.g. "search_aggregates").
	Prefix string `json:"prefix"`

	// Partitions is the shard count; zero means the backend default.
	Partitions int `json:"partitions"`
}

// Path returns the output directory for the given date:
//
//	<root>/<bucket>/<prefix>/v3/submission_date_s3=<date>
func (f FileConfig) Path(date string) string {
	return filepath.Join(f.Root, f.Bucket, f.Prefix, fmt.Sprintf("v%d", Version), "submission_date_s3="+date)
}

// RuntimeConfig controls batching and channel buffer sizes.
type RuntimeConfig struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Metrics selects the optional metrics backend.
type Metrics struct {
	// Backend selects the implementation: "" (none), "prometheus", "datadog".
	Backend string `json:"backend"`

	// Options is a free-form map interpreted by the selected backend. For
	// prometheus, typical keys: pushgateway_url. For datadog: addr,
	// namespace, tags.
	Options Options `json:"options"`
}

// ApplyDefaults fills empty fields with their canonical defaults. It is safe
// to call more than once.
func (j *Job) ApplyDefaults() {
	if j.Name == "" {
		j.Name = "search-rollup"
	}
	if j.Input.Bucket == "" {
		j.Input.Bucket = DefaultBucket
	}
	if j.Input.Prefix == "" {
		j.Input.Prefix = DefaultInputPrefix
	}
	if j.Storage.Kind == "" {
		j.Storage.Kind = "filepart"
	}
	if j.Storage.SaveMode == "" {
		j.Storage.SaveMode = "error"
	}
	// File output lands next to the input unless told otherwise.
	if j.Storage.File.Root == "" {
		j.Storage.File.Root = j.Input.Root
	}
	if j.Storage.File.Bucket == "" {
		j.Storage.File.Bucket = j.Input.Bucket
	}
	if j.Storage.File.Prefix == "" {
		j.Storage.File.Prefix = DefaultOutputPrefix
	}
	if j.Runtime.BatchSize <= 0 {
		j.Runtime.BatchSize = 1000
	}
	if j.Runtime.ChannelBuffer <= 0 {
		j.Runtime.ChannelBuffer = 256
	}
}

// Load decodes a Job from a JSON file.
func Load(path string) (Job, error) {
	var j Job
	f, err := os.Open(path)
	if err != nil {
		return j, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&j); err != nil {
		return j, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return j, nil
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
//
// Options is used for backend-specific configuration where the shape varies
// by implementation.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null "options"
// object in JSON decodes to a non-nil, empty Options map. This simplifies call
// sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
