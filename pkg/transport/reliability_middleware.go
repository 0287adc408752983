package transport

import (
	"context"
	"errors"
	"time"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
)

// RetryConfig controls request retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry; each further
	// retry doubles it up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Logger logging.Logger
}

// DefaultRetryConfig returns conservative retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// RetryMiddleware retries failed requests with exponential backoff. Only
// timeout and transport faults are retried; protocol and validation errors
// are returned as-is. Initialize is never retried here: a failed handshake
// leaves the transport in a terminal state, and recovery means building a
// fresh transport.
func RetryMiddleware(cfg RetryConfig) Middleware {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	return func(inner Transport) Transport {
		return &retryTransport{
			middlewareTransport: middlewareTransport{inner: inner},
			cfg:                 cfg,
		}
	}
}

type retryTransport struct {
	middlewareTransport
	cfg RetryConfig
}

func (t *retryTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	backoff := t.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		result, err := t.inner.SendRequest(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		if attempt == t.cfg.MaxAttempts {
			break
		}

		t.cfg.Logger.Debug("retrying request",
			logging.String("method", method),
			logging.Int("attempt", attempt),
			logging.ErrorField(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
		if backoff > t.cfg.MaxBackoff {
			backoff = t.cfg.MaxBackoff
		}
	}
	return nil, lastErr
}

// retryable reports whether a request failure is worth repeating. A closed
// transport will not come back, and protocol errors will fail the same way
// every time.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	te, ok := pmerrors.AsTransportError(err)
	if !ok {
		return false
	}
	if te.Code() == pmerrors.CodeTransportClosed {
		return false
	}
	switch te.Category() {
	case pmerrors.CategoryTimeout, pmerrors.CategoryTransport:
		return true
	}
	return false
}
