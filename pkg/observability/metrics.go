// Package observability provides metrics and tracing for the postMessage
// transport.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// Service identification
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Metric options
	Namespace        string    // Prometheus namespace (default: postmessage)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Registerer defaults to the global prometheus registry.
	Registerer prometheus.Registerer

	// Labels to add to all metrics
	ConstLabels prometheus.Labels
}

// MetricsProvider records transport-level metrics.
type MetricsProvider interface {
	// RecordEnvelope counts an envelope moving through the transport.
	// direction is "inbound" or "outbound"; kind is the envelope kind.
	RecordEnvelope(direction, kind string)

	// RecordRejected counts an inbound message dropped at the boundary.
	RecordRejected(reason string)

	// RecordHandshake observes a handshake attempt outcome.
	RecordHandshake(status string, duration time.Duration)

	// RecordRequest observes an RPC request issued over the transport.
	RecordRequest(method, status string, duration time.Duration)

	// SetConnectionState records the current state of the transport.
	SetConnectionState(state string)
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus.
type PrometheusMetricsProvider struct {
	config MetricsConfig

	envelopeTotal     *prometheus.CounterVec
	rejectedTotal     *prometheus.CounterVec
	handshakeDuration *prometheus.HistogramVec
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	connectionState   *prometheus.GaugeVec
}

// NewMetricsProvider creates a new Prometheus metrics provider.
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "postmessage"
	}
	if config.HistogramBuckets == nil {
		// Default buckets in milliseconds
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	if config.ServiceName != "" {
		config.ConstLabels["service"] = config.ServiceName
	}
	if config.ServiceVersion != "" {
		config.ConstLabels["version"] = config.ServiceVersion
	}
	if config.Environment != "" {
		config.ConstLabels["environment"] = config.Environment
	}

	p := &PrometheusMetricsProvider{config: config}
	p.initializeMetrics()

	if err := p.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return p, nil
}

// initializeMetrics creates all metric collectors.
func (p *PrometheusMetricsProvider) initializeMetrics() {
	p.envelopeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "envelope_total",
			Help:        "Total number of envelopes moved through the transport",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"direction", "kind"},
	)

	p.rejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "rejected_total",
			Help:        "Total number of inbound messages dropped at the boundary",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"reason"},
	)

	p.handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "handshake_duration_milliseconds",
			Help:        "Duration of handshake attempts in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"status"},
	)

	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of RPC requests in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_total",
			Help:        "Total number of RPC requests",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "status"},
	)

	p.connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "connection_state",
			Help:        "Current transport state (1 for the active state, 0 otherwise)",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"state"},
	)
}

// registerMetrics registers all collectors with the configured registerer.
func (p *PrometheusMetricsProvider) registerMetrics() error {
	collectors := []prometheus.Collector{
		p.envelopeTotal,
		p.rejectedTotal,
		p.handshakeDuration,
		p.requestDuration,
		p.requestTotal,
		p.connectionState,
	}
	for _, c := range collectors {
		if err := p.config.Registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordEnvelope counts an envelope moving through the transport.
func (p *PrometheusMetricsProvider) RecordEnvelope(direction, kind string) {
	p.envelopeTotal.WithLabelValues(direction, kind).Inc()
}

// RecordRejected counts a dropped inbound message.
func (p *PrometheusMetricsProvider) RecordRejected(reason string) {
	p.rejectedTotal.WithLabelValues(reason).Inc()
}

// RecordHandshake observes a handshake attempt outcome.
func (p *PrometheusMetricsProvider) RecordHandshake(status string, duration time.Duration) {
	p.handshakeDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordRequest observes an RPC request.
func (p *PrometheusMetricsProvider) RecordRequest(method, status string, duration time.Duration) {
	p.requestTotal.WithLabelValues(method, status).Inc()
	p.requestDuration.WithLabelValues(method, status).Observe(float64(duration.Milliseconds()))
}

// SetConnectionState records the current transport state as a one-hot gauge.
func (p *PrometheusMetricsProvider) SetConnectionState(state string) {
	for _, s := range []string{"idle", "preparing", "handshaking", "connected", "closing", "closed", "failed"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		p.connectionState.WithLabelValues(s).Set(v)
	}
}

// Handler returns an HTTP handler exposing the default registry, for hosts
// that want to scrape transport metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NopMetrics is a MetricsProvider that discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordEnvelope(direction, kind string) {}

func (NopMetrics) RecordRejected(reason string) {}

func (NopMetrics) RecordHandshake(status string, duration time.Duration) {}

func (NopMetrics) RecordRequest(method, status string, d time.Duration) {}

func (NopMetrics) SetConnectionState(state string) {}
