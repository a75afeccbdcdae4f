package telemetry

import (
	"bytes"
	"log"
	"testing"

	"basewar/server/logging"
)

func TestWrapLogger(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		logger := WrapLogger(nil)
		logger.Printf("ignored %d", 42)
	})

	t.Run("forwards to logger", func(t *testing.T) {
		var buf bytes.Buffer
		base := log.New(&buf, "", 0)
		logger := WrapLogger(base)
		logger.Printf("hello %s", "world")
		if got := buf.String(); got != "hello world\n" {
			t.Fatalf("unexpected log output: %q", got)
		}
		provider, ok := logger.(interface{ StandardLogger() *log.Logger })
		if !ok || provider.StandardLogger() != base {
			t.Fatalf("expected wrapped logger to expose the standard logger")
		}
	})
}

func TestWrapMetrics(t *testing.T) {
	metrics := logging.Metrics{}
	adapter := WrapMetrics(&metrics)

	adapter.Add(MetricTicks, 2)
	adapter.Store(MetricTicks, 5)
	adapter.Add(MetricTicks, 3)

	snapshot := metrics.Snapshot()
	if got := snapshot[MetricTicks]; got != 8 {
		t.Fatalf("unexpected metric value: %d", got)
	}

	// Ensure nil metrics do not panic.
	var nilAdapter Metrics = WrapMetrics(nil)
	nilAdapter.Add("ignored", 1)
	nilAdapter.Store("ignored", 1)
	NopMetrics().Add("ignored", 1)
}
