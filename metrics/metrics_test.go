package metrics

import (
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"testing"
	"time"
)

func delta(t *testing.T, collector prometheus.Collector, observe func()) float64 {
	t.Helper()

	before := testutil.ToFloat64(collector)
	observe()
	after := testutil.ToFloat64(collector)
	return after - before
}

func TestObserveStore(t *testing.T) {
	start := time.Now().Add(-time.Second)

	if inc := delta(t, storeRequestsTotal.WithLabelValues("complete_block", "success"), func() {
		ObserveStore("complete_block", nil, start)
	}); inc != 1 {
		t.Fatalf("expected store success counter increment, got %v", inc)
	}

	if inc := delta(t, storeRequestsTotal.WithLabelValues("complete_block", "error"), func() {
		ObserveStore("complete_block", errors.New("boom"), start)
	}); inc != 1 {
		t.Fatalf("expected store error counter increment, got %v", inc)
	}
}

func TestPresenceAndSettlement(t *testing.T) {
	SetOnlineSessions(4)
	if got := testutil.ToFloat64(onlineSessions); got != 4 {
		t.Fatalf("expected 4 online sessions, got %v", got)
	}

	if inc := delta(t, rewardsPaidTotal, func() { AddRewardsPaid(560) }); inc != 560 {
		t.Fatalf("expected rewards paid to grow by 560, got %v", inc)
	}

	if inc := delta(t, submissionsTotal.WithLabelValues("accepted"), func() {
		ObserveSubmission("accepted")
	}); inc != 1 {
		t.Fatalf("expected accepted submission increment, got %v", inc)
	}

	if inc := delta(t, signalsTotal.WithLabelValues("offer", "peer-not-found"), func() {
		ObserveSignal("offer", "peer-not-found")
	}); inc != 1 {
		t.Fatalf("expected signal increment, got %v", inc)
	}
}
