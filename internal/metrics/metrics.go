// Package metrics exposes Prometheus instrumentation for analyses.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions by outcome: "complete", "partial" (static only) or "error".
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscan_submissions_total",
			Help: "Total number of analysed submissions by outcome",
		},
		[]string{"outcome"},
	)

	FindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscan_findings_total",
			Help: "Total number of static findings by severity",
		},
		[]string{"severity"},
	)

	PhaseDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenscan_phase_duration_seconds",
			Help:    "Duration of pipeline phases",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"phase"},
	)

	PhaseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenscan_phase_failures_total",
			Help: "Total number of failed pipeline phases by reason",
		},
		[]string{"phase", "reason"}, // exit, timeout, run_id, conflict, ...
	)

	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "greenscan_rules_loaded",
			Help: "Number of active rules in the catalog",
		},
	)
)

// RecordPhase observes the duration of a finished phase.
func RecordPhase(phase string, d time.Duration) {
	PhaseDurationSeconds.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordFailure counts a failed phase.
func RecordFailure(phase, reason string) {
	PhaseFailuresTotal.WithLabelValues(phase, reason).Inc()
}

// RecordFindings counts findings per severity label. Unknown labels are
// grouped as "other" to bound cardinality.
func RecordFindings(severities []string) {
	for _, s := range severities {
		switch u := strings.ToUpper(s); u {
		case "HIGH", "MEDIUM", "LOW":
			FindingsTotal.WithLabelValues(strings.ToLower(u)).Inc()
		default:
			FindingsTotal.WithLabelValues("other").Inc()
		}
	}
}

// RecordSubmission counts a finished submission.
func RecordSubmission(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}
