package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ContextMiddleware wraps handler functions so every invocation carries a
// request ID and start/finish log entries.
type ContextMiddleware struct {
	logger Logger
}

// NewContextMiddleware creates a new context middleware.
func NewContextMiddleware(logger Logger) *ContextMiddleware {
	return &ContextMiddleware{logger: logger}
}

// WrapHandler wraps a handler function with context logging.
func (m *ContextMiddleware) WrapHandler(operation string, handler func(context.Context, interface{}) (interface{}, error)) func(context.Context, interface{}) (interface{}, error) {
	return func(ctx context.Context, params interface{}) (interface{}, error) {
		requestID := RequestIDFromContext(ctx)
		if requestID == "" {
			requestID = uuid.New().String()
			ctx = ContextWithRequestID(ctx, requestID)
		}

		logger := m.logger.WithFields(
			String("request_id", requestID),
			String("operation", operation),
		)

		logger.Debug("Operation started")
		start := time.Now()

		result, err := handler(ctx, params)

		duration := time.Since(start)
		if err != nil {
			logger.WithError(err).WithFields(
				Duration("duration", duration),
			).Error("Operation failed")
		} else {
			logger.WithFields(
				Duration("duration", duration),
			).Debug("Operation completed")
		}

		return result, err
	}
}

// RequestIDGenerator generates unique request IDs.
type RequestIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates UUID request IDs.
type UUIDGenerator struct{}

// Generate generates a new UUID.
func (g *UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// PrefixedGenerator generates prefixed request IDs.
type PrefixedGenerator struct {
	Prefix    string
	Generator RequestIDGenerator
}

// Generate generates a new prefixed ID.
func (g *PrefixedGenerator) Generate() string {
	return fmt.Sprintf("%s-%s", g.Prefix, g.Generator.Generate())
}
