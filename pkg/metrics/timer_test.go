package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleep := 50 * time.Millisecond
	time.Sleep(sleep)

	if d := timer.Duration(); d < sleep {
		t.Errorf("Duration() = %v, want >= %v", d, sleep)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_block_make_seconds",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDuration(hist)

	if got := testutil.CollectAndCount(hist); got != 1 {
		t.Errorf("collected %d metrics, want 1", got)
	}
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "test_request_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "block_write")

	if got := testutil.CollectAndCount(vec); got != 1 {
		t.Errorf("collected %d labeled metrics, want 1", got)
	}
}
