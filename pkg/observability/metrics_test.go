package observability

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *PrometheusMetricsProvider {
	t.Helper()
	p, err := NewMetricsProvider(MetricsConfig{
		ServiceName: "test",
		Registerer:  prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return p
}

func TestMetricsProviderRecords(t *testing.T) {
	p := newTestProvider(t)

	// None of these may panic; values are verified via the prometheus
	// testutil-free path of simply exercising every label combination.
	p.RecordEnvelope("in", "rpc")
	p.RecordEnvelope("out", "handshake-init")
	p.RecordRejected("origin")
	p.RecordHandshake("ok", 15*time.Millisecond)
	p.RecordHandshake("version_incompatible", time.Millisecond)
	p.RecordRequest("tools/list", "ok", 5*time.Millisecond)
	p.SetConnectionState("connected")
	p.SetConnectionState("closed")
}

func TestMetricsProviderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsProvider(MetricsConfig{Registerer: reg})
	require.NoError(t, err)

	_, err = NewMetricsProvider(MetricsConfig{Registerer: reg})
	assert.Error(t, err, "registering the same collectors twice must fail")
}

func TestNopMetrics(t *testing.T) {
	var m NopMetrics
	m.RecordEnvelope("in", "rpc")
	m.RecordRejected("session")
	m.RecordHandshake("ok", 0)
	m.RecordRequest("tools/call", "error", 0)
	m.SetConnectionState("failed")
}

func TestTracingProviderNoop(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{
		ServiceName:  "test",
		ExporterType: ExporterTypeNoop,
	})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, tp.Shutdown(context.Background()))
	}()

	ctx, span := tp.StartHandshakeSpan(context.Background(), "sess-1")
	tp.AddEvent(ctx, "handshake-ack received")
	span.End()

	_, span = tp.StartMethodSpan(context.Background(), "tools/list", 0)
	span.End()
}
