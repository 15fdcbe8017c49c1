package otel

import (
	"context"
	"errors"
	"testing"

	goRefresh "github.com/MrEthical07/goRefresh"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	snapshot goRefresh.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goRefresh.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                       { return f.dropped }

func TestExporterRejectsNilInput(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gorefresh-test")

	if _, err := NewOTelExporterFromSource(nil, fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterObservesSnapshot(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("gorefresh-test")

	source := fakeSource{
		snapshot: goRefresh.MetricsSnapshot{
			Counters: map[goRefresh.MetricID]uint64{
				goRefresh.MetricLoginSuccess:   12,
				goRefresh.MetricRefreshSuccess: 9,
			},
			Histograms: map[goRefresh.MetricID][]uint64{
				goRefresh.MetricRotateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 3,
	}

	exporter, err := NewOTelExporterFromSource(meter, source)
	if err != nil {
		t.Fatalf("create exporter: %v", err)
	}
	defer func() {
		if err := exporter.Close(); err != nil {
			t.Fatalf("close exporter: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected scope metrics after collect")
	}

	values := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if ok {
				for _, dp := range sum.DataPoints {
					values[m.Name] = dp.Value
				}
				continue
			}
			if gauge, ok := m.Data.(metricdata.Gauge[int64]); ok {
				for _, dp := range gauge.DataPoints {
					values[m.Name] = dp.Value
				}
			}
		}
	}

	if got := values["gorefresh_login_success_total"]; got != 12 {
		t.Fatalf("expected login success 12, got %d", got)
	}
	if got := values["gorefresh_refresh_success_total"]; got != 9 {
		t.Fatalf("expected refresh success 9, got %d", got)
	}
	if got := values["gorefresh_audit_dropped_total"]; got != 3 {
		t.Fatalf("expected audit dropped 3, got %d", got)
	}
	// Buckets are cumulative; the +Inf bucket carries the total count of 8.
	if got := values["gorefresh_rotate_latency_seconds_bucket_le_inf"]; got != 8 {
		t.Fatalf("expected +Inf bucket 8, got %d", got)
	}
	if got := values["gorefresh_rotate_latency_seconds_count"]; got != 8 {
		t.Fatalf("expected histogram count 8, got %d", got)
	}
}
