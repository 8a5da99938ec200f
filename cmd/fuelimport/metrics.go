package main

import (
	"log"

	"fuelimport/internal/config"
	"fuelimport/internal/metrics"
	"fuelimport/internal/metrics/datadog"
	"fuelimport/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns a function that
// flushes it. Initialization failures fall back to the no-op backend.
func setupMetrics(job config.Job, logger *log.Logger) func() {
	var closeFn func() error

	switch job.Metrics.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(job.Job, job.Metrics.PushgatewayURL)
		if err != nil {
			logger.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		logger.Printf("metrics: url=%v, backend=prometheus, job_name=%v", job.Metrics.PushgatewayURL, job.Job)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       job.Metrics.DatadogAddr,
			Namespace:  "fuelimport.",
			GlobalTags: []string{"job:" + job.Job},
		})
		if err != nil {
			logger.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		logger.Printf("metrics: addr=%v, backend=datadog", job.Metrics.DatadogAddr)
		metrics.SetBackend(b)
		closeFn = b.Close

	case "", "none":
		return func() {}

	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", job.Metrics.Backend)
		return func() {}
	}

	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
		if closeFn != nil {
			if err := closeFn(); err != nil {
				logger.Printf("metrics: close error: %v", err)
			}
		}
	}
}
