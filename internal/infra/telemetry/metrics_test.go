package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}

	metrics.ObserveModeration("approve", "success")
	metrics.ObserveModeration("approve", "invalid_state")
	metrics.ObserveNotification("story-approved", false)
	metrics.ObserveProvisioning("token_consumed")

	if got := testutil.ToFloat64(metrics.transitions.WithLabelValues("approve", "success")); got != 1 {
		t.Fatalf("expected 1 approval, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.notifications.WithLabelValues("story-approved", "failed")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.provisioning.WithLabelValues("token_consumed")); got != 1 {
		t.Fatalf("expected 1 consumed token, got %v", got)
	}
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics returned error: %v", err)
	}
	second, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("second NewMetrics returned error: %v", err)
	}

	second.ObserveProvisioning("account_created")
	if got := testutil.ToFloat64(first.provisioning.WithLabelValues("account_created")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveModeration("reject", "success")
	metrics.ObserveNotification("story-rejected", true)
	metrics.ObserveProvisioning("link_resent")
}
