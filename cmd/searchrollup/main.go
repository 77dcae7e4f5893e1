package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"searchrollup/internal/config"
	"searchrollup/internal/metrics"
	"searchrollup/internal/metrics/datadog"
	"searchrollup/internal/metrics/prompush"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "searchrollup/internal/storage/all"
)

// main is the entry point for the rollup binary. It loads the job config,
// applies flag overrides, optionally initializes a metrics backend, and
// executes the run.
func main() {
	var (
		cfgPath           string
		submissionDate    string
		inputRoot         string
		inputBucket       string
		inputPrefix       string
		outputRoot        string
		outputBucket      string
		outputPrefix      string
		groupByFlg        string
		saveModeFlg       string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "", "job config JSON path (optional; flags override)")
	flag.StringVar(&submissionDate, "submission-date", "", "submission date to roll up (yyyymmdd)")
	flag.StringVar(&inputRoot, "input-root", "", "local directory holding bucket directories")
	flag.StringVar(&inputBucket, "input-bucket", "", "input bucket name (default telemetry-parquet)")
	flag.StringVar(&inputPrefix, "input-prefix", "", "input dataset prefix (default main_summary/v4)")
	flag.StringVar(&outputRoot, "output-root", "", "local directory for file output (default: input root)")
	flag.StringVar(&outputBucket, "bucket", "", "output bucket name (default: input bucket)")
	flag.StringVar(&outputPrefix, "prefix", "", "output dataset prefix (default search_aggregates)")
	flag.StringVar(&groupByFlg, "group-by", "", "comma-separated grouping columns (default: dashboard set)")
	flag.StringVar(&saveModeFlg, "save-mode", "", "behavior when destination exists: error, overwrite, append")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (prometheus, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	var job config.Job
	if cfgPath != "" {
		var err error
		job, err = config.Load(cfgPath)
		if err != nil {
			fatalf("%v", err)
		}
	}

	// Flags override the file.
	if submissionDate != "" {
		job.Input.SubmissionDate = submissionDate
	}
	if inputRoot != "" {
		job.Input.Root = inputRoot
	}
	if inputBucket != "" {
		job.Input.Bucket = inputBucket
	}
	if inputPrefix != "" {
		job.Input.Prefix = inputPrefix
	}
	if outputRoot != "" {
		job.Storage.File.Root = outputRoot
	}
	if outputBucket != "" {
		job.Storage.File.Bucket = outputBucket
	}
	if outputPrefix != "" {
		job.Storage.File.Prefix = outputPrefix
	}
	if groupByFlg != "" {
		job.Rollup.GroupBy = splitCSV(groupByFlg)
	}
	if saveModeFlg != "" {
		job.Storage.SaveMode = saveModeFlg
	}
	if metricsBackendFlg != "" {
		job.Metrics.Backend = metricsBackendFlg
	}
	resolveMetricsOptions(&job, pushGatewayURLFlg)
	job.ApplyDefaults()

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("configuration is invalid: job=%s", job.Name)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit.
	if validate {
		log.Printf("configuration is valid: job=%s", job.Name)
		os.Exit(0)
	}

	initMetrics(job, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("job: name=%s date=%s input=%s storage=%s",
			job.Name, job.Input.SubmissionDate, job.Input.Path(), job.Storage.Kind)
	}

	if err := run(ctx, job); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// resolveMetricsOptions folds the -pushgateway-url flag and the
// PUSHGATEWAY_URL environment variable into the job's metrics options, flag
// first, so validation sees the same values initMetrics will use.
func resolveMetricsOptions(job *config.Job, gwFlag string) {
	gw := gwFlag
	if gw == "" {
		gw = job.Metrics.Options.String("pushgateway_url", "")
	}
	if gw == "" {
		gw = os.Getenv("PUSHGATEWAY_URL")
	}
	if gw == "" {
		return
	}
	if job.Metrics.Options == nil {
		job.Metrics.Options = config.Options{}
	}
	job.Metrics.Options["pushgateway_url"] = gw
}

// initMetrics installs the configured metrics backend, if any. Failures fall
// back to the nop backend so a broken Pushgateway never fails a rollup.
func initMetrics(job config.Job, verbose bool) {
	backendName := job.Metrics.Backend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	switch backendName {
	case "prometheus":
		gwURL := job.Metrics.Options.String("pushgateway_url", "")

		b, err := prompush.NewBackend(job.Name, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=prometheus url=%s job_name=%s", gwURL, job.Name)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       job.Metrics.Options.String("addr", ""),
			Namespace:  job.Metrics.Options.String("namespace", ""),
			GlobalTags: job.Metrics.Options.StringSlice("tags"),
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s", job.Metrics.Options.String("addr", ""))
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
