package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/textgate/internal/signal"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	hit := signal.Positive("harm_pattern", "1.0.0", signal.CategoryWeapons, 0.9, "d", "", nil)
	miss := signal.Negative("harm_pattern", "1.0.0", "clean")

	r.ObserveEvaluation("harm_pattern", hit, 5*time.Millisecond)
	r.ObserveEvaluation("harm_pattern", miss, time.Millisecond)
	r.ObserveEvaluation("harm_pattern", miss, time.Millisecond)
	r.ObserveError("semantic")
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveCache(false)
	r.ObserveVerdict(hit)
	r.ObserveVerdict(miss)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("harm_pattern", "detected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("harm_pattern", "clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Errors.WithLabelValues("semantic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Cache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Cache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Verdicts.WithLabelValues("harm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Verdicts.WithLabelValues("none")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"textgate_evaluations_total",
		"textgate_evaluation_errors_total",
		"textgate_evaluation_duration_seconds",
		"textgate_semantic_cache_total",
		"textgate_verdicts_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveEvaluation("x", signal.Verdict{}, time.Second)
		r.ObserveError("x")
		r.ObserveCache(true)
		r.ObserveVerdict(signal.Verdict{})
	})
}

func TestNewRecorder_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewRecorder(prometheus.NewRegistry())
		NewRecorder(prometheus.NewRegistry())
		NewRecorder(nil)
	})
}
