// Package config provides configuration models and helpers for rollup jobs.
//
// This file adds a lightweight linter/validator for Job values. It performs
// static checks over a decoded Job and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
	"time"

	"searchrollup/internal/rollup"
	"searchrollup/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Job.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "rollup.group_by[2]"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue in the list has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidateJob performs static validation / linting of a Job. Call
// ApplyDefaults first so defaulted fields do not trip required checks.
//
// It does not mutate the job. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	j, err := config.Load(path)
//	if err != nil { ... }
//	j.ApplyDefaults()
//	issues := config.ValidateJob(j)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidateJob(j Job) []Issue {
	var issues []Issue

	if strings.TrimSpace(j.Name) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	issues = append(issues, validateInput(j.Input)...)
	issues = append(issues, validateRollup(j.Rollup)...)
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateMetrics(j.Metrics)...)

	return issues
}

// validateInput validates the snapshot coordinates.
func validateInput(in Input) []Issue {
	var issues []Issue

	if strings.TrimSpace(in.Root) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input.root",
			Message:  "input.root must not be empty",
		})
	}
	if strings.TrimSpace(in.SubmissionDate) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input.submission_date",
			Message:  "input.submission_date must not be empty",
		})
	} else if _, err := time.Parse(schema.SubmissionDateLayout, in.SubmissionDate); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input.submission_date",
			Message:  fmt.Sprintf("submission_date %q is not a yyyymmdd date", in.SubmissionDate),
		})
	}

	return issues
}

// validateRollup validates the aggregation settings. Unknown grouping columns
// are errors so a typo fails the run before any data is read.
func validateRollup(r Rollup) []Issue {
	var issues []Issue

	if _, err := rollup.ResolveColumns(r.GroupBy); err != nil {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rollup.group_by",
			Message:  fmt.Sprintf("%v; known columns: %s", err, strings.Join(rollup.KnownDimensions(), ", ")),
		})
	}
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "rollup.workers",
			Message:  "workers must not be negative",
		})
	}

	return issues
}

// validateStorage validates storage configuration per kind.
func validateStorage(s Storage) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
		return issues
	}

	known := map[string]struct{}{
		"filepart": {},
		"postgres": {},
		"sqlite":   {},
	}
	if _, ok := known[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}

	switch s.SaveMode {
	case "", "error", "overwrite", "append":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.save_mode",
			Message:  fmt.Sprintf("unknown save mode %q; want error, overwrite, or append", s.SaveMode),
		})
	}

	switch s.Kind {
	case "postgres", "sqlite":
		if strings.TrimSpace(s.DB.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.dsn",
				Message:  "storage.db.dsn must not be empty",
			})
		}
		if strings.TrimSpace(s.DB.Table) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.db.table",
				Message:  "storage.db.table must not be empty",
			})
		}
	case "filepart":
		if strings.TrimSpace(s.File.Root) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.file.root",
				Message:  "filepart storage requires a non-empty root",
			})
		}
		if strings.TrimSpace(s.File.Bucket) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.file.bucket",
				Message:  "filepart storage requires a non-empty bucket",
			})
		}
		if strings.TrimSpace(s.File.Prefix) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.file.prefix",
				Message:  "filepart storage requires a non-empty prefix",
			})
		}
		if s.File.Partitions < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.file.partitions",
				Message:  "partitions must not be negative",
			})
		}
	}

	return issues
}

// validateRuntime validates RuntimeConfig for obvious misconfigurations
// (negative values, zero-sized batches, etc.).
func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; non-positive batch sizes may hurt throughput", r.BatchSize),
		})
	}
	if r.ChannelBuffer < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.channel_buffer",
			Message:  "channel_buffer must not be negative",
		})
	}

	return issues
}

// validateMetrics validates the metrics backend selection.
func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none", "prometheus", "datadog":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}

	switch m.Backend {
	case "prometheus":
		if m.Options.String("pushgateway_url", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.options.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		}
	case "datadog":
		if m.Options.String("addr", "") == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.options.addr",
				Message:  "datadog backend requires addr",
			})
		}
	}

	return issues
}
