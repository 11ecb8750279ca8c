// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	sessionsImported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monstim_sessions_imported",
		Help: "Number of sessions imported in the last data directory scan",
	})

	datasetsImported = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monstim_datasets_imported",
		Help: "Number of datasets assembled in the last data directory scan",
	})

	importFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monstim_import_failures_total",
		Help: "Total number of import failures by stage",
	}, []string{"stage"}) // stage=scan|parse|session|dataset|store|report

	mmaxOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monstim_mmax_outcomes_total",
		Help: "M-max computations per channel by outcome",
	}, []string{"outcome"}) // outcome=valid|no_plateau|error

	analysisDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "monstim_analysis_duration_seconds",
		Help:    "Time spent computing one analysis",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}) // kind=mmax|curve|suspected_h

	reportsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monstim_reports_written_total",
		Help: "Total number of report files written",
	})
	reportWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monstim_report_write_errors_total",
		Help: "Total number of report write failures",
	})

	// Operational metrics
	configValidationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monstim_config_validation_errors_total",
		Help: "Total number of configuration validation errors",
	})

	cacheOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monstim_cache_ops_total",
		Help: "Result cache operations by outcome",
	}, []string{"outcome"}) // outcome=hit|miss|error
)

func RecordImportCounts(sessions, datasets int) {
	sessionsImported.Set(float64(sessions))
	datasetsImported.Set(float64(datasets))
}

func IncImportFailure(stage string) { importFailuresTotal.WithLabelValues(stage).Inc() }

func IncMMaxOutcome(outcome string) { mmaxOutcomesTotal.WithLabelValues(outcome).Inc() }

func ObserveAnalysisDuration(kind string, seconds float64) {
	analysisDurationSeconds.WithLabelValues(kind).Observe(seconds)
}

func RecordReportWrite(err error) {
	if err != nil {
		reportWriteErrors.Inc()
		return
	}
	reportsWritten.Inc()
}

func IncConfigValidationError() { configValidationErrors.Inc() }

func IncCacheHit()   { cacheOpsTotal.WithLabelValues("hit").Inc() }
func IncCacheMiss()  { cacheOpsTotal.WithLabelValues("miss").Inc() }
func IncCacheError() { cacheOpsTotal.WithLabelValues("error").Inc() }
