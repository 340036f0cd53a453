package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFindings(t *testing.T) {
	high := testutil.ToFloat64(FindingsTotal.WithLabelValues("high"))
	other := testutil.ToFloat64(FindingsTotal.WithLabelValues("other"))

	RecordFindings([]string{"HIGH", "high", "CRITICAL"})

	assert.Equal(t, high+2, testutil.ToFloat64(FindingsTotal.WithLabelValues("high")))
	assert.Equal(t, other+1, testutil.ToFloat64(FindingsTotal.WithLabelValues("other")))
}

func TestRecordFailureAndSubmission(t *testing.T) {
	before := testutil.ToFloat64(PhaseFailuresTotal.WithLabelValues("compile", "exit"))
	RecordFailure("compile", "exit")
	assert.Equal(t, before+1, testutil.ToFloat64(PhaseFailuresTotal.WithLabelValues("compile", "exit")))

	sub := testutil.ToFloat64(SubmissionsTotal.WithLabelValues("partial"))
	RecordSubmission("partial")
	assert.Equal(t, sub+1, testutil.ToFloat64(SubmissionsTotal.WithLabelValues("partial")))
}

func TestRecordPhase(t *testing.T) {
	RecordPhase("static", 20*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(PhaseDurationSeconds, "greenscan_phase_duration_seconds"), 1)
}
