package transport

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/observability"
)

// ObservabilityMiddleware logs and traces every call crossing the transport
// boundary. Metrics for the wire itself are recorded inside the transports;
// this middleware adds the caller-facing view: per-method spans, request IDs,
// and timing logs.
func ObservabilityMiddleware(logger logging.Logger, tracing *observability.TracingProvider) Middleware {
	if logger == nil {
		logger = logging.Nop()
	}
	return func(inner Transport) Transport {
		return &observabilityTransport{
			middlewareTransport: middlewareTransport{inner: inner},
			logger:              logger,
			tracing:             tracing,
		}
	}
}

type observabilityTransport struct {
	middlewareTransport
	logger  logging.Logger
	tracing *observability.TracingProvider
}

func (t *observabilityTransport) Initialize(ctx context.Context) error {
	if t.tracing != nil {
		var span trace.Span
		ctx, span = t.tracing.StartHandshakeSpan(ctx, t.inner.SessionID())
		defer span.End()
	}

	start := time.Now()
	err := t.inner.Initialize(ctx)
	fields := []logging.Field{
		logging.Duration("duration", time.Since(start)),
		logging.String("session_id", t.inner.SessionID()),
	}
	if err != nil {
		t.logger.Error("transport initialization failed", append(fields, logging.ErrorField(err))...)
		if t.tracing != nil {
			t.tracing.RecordError(ctx, err)
		}
		return err
	}
	t.logger.Info("transport initialized",
		append(fields, logging.String("protocol_version", t.inner.NegotiatedVersion()))...)
	return nil
}

func (t *observabilityTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	if t.tracing != nil {
		var span trace.Span
		ctx, span = t.tracing.StartMethodSpan(ctx, method, trace.SpanKindClient)
		defer span.End()
	}
	ctx = logging.ContextWithRequestID(ctx, t.inner.SessionID())

	start := time.Now()
	result, err := t.inner.SendRequest(ctx, method, params)
	if err != nil {
		t.logger.Warn("request failed",
			logging.String("method", method),
			logging.Duration("duration", time.Since(start)),
			logging.ErrorField(err))
		if t.tracing != nil {
			t.tracing.RecordError(ctx, err)
		}
		return nil, err
	}
	t.logger.Debug("request completed",
		logging.String("method", method),
		logging.Duration("duration", time.Since(start)))
	return result, nil
}

func (t *observabilityTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	err := t.inner.SendNotification(ctx, method, params)
	if err != nil {
		t.logger.Warn("notification failed",
			logging.String("method", method),
			logging.ErrorField(err))
		return err
	}
	t.logger.Debug("notification sent", logging.String("method", method))
	return nil
}
