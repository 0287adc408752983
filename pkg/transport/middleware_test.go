package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
)

// fakeTransport records calls and returns scripted results.
type fakeTransport struct {
	*BaseTransport
	sendCalls   int
	sendResults []error
	notes       []string
	state       State
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		BaseTransport: NewBaseTransport(logging.Nop()),
		state:         StateConnected,
	}
}

func (f *fakeTransport) Initialize(ctx context.Context) error { return nil }
func (f *fakeTransport) Start(ctx context.Context) error      { return nil }
func (f *fakeTransport) Stop(ctx context.Context) error       { return nil }

func (f *fakeTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	f.sendCalls++
	if len(f.sendResults) > 0 {
		err := f.sendResults[0]
		f.sendResults = f.sendResults[1:]
		if err != nil {
			return nil, err
		}
	}
	return "ok", nil
}

func (f *fakeTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	f.notes = append(f.notes, method)
	return nil
}

func (f *fakeTransport) SessionID() string         { return "pm_session_fake" }
func (f *fakeTransport) NegotiatedVersion() string { return "1.0" }
func (f *fakeTransport) State() State              { return f.state }

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(inner Transport) Transport {
			return &taggedTransport{middlewareTransport{inner: inner}, name, &order}
		}
	}

	fake := newFakeTransport()
	wrapped := ChainMiddleware(tag("outer"), tag("inner"))(fake)

	_, err := wrapped.SendRequest(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

type taggedTransport struct {
	middlewareTransport
	name  string
	order *[]string
}

func (t *taggedTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	*t.order = append(*t.order, t.name)
	return t.inner.SendRequest(ctx, method, params)
}

func TestRetryMiddlewareRetriesTransportFaults(t *testing.T) {
	fake := newFakeTransport()
	fake.sendResults = []error{
		pmerrors.NewError(pmerrors.CodeTransportError, "flaky", pmerrors.CategoryTransport, pmerrors.SeverityWarning),
		pmerrors.NewError(pmerrors.CodeTransportError, "flaky", pmerrors.CategoryTransport, pmerrors.SeverityWarning),
		nil,
	}

	wrapped := RetryMiddleware(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})(fake)

	result, err := wrapped.SendRequest(context.Background(), "flaky/op", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, fake.sendCalls)
}

func TestRetryMiddlewareDoesNotRetryProtocolErrors(t *testing.T) {
	fake := newFakeTransport()
	fake.sendResults = []error{pmerrors.SessionMismatch("a", "b")}

	wrapped := RetryMiddleware(DefaultRetryConfig())(fake)

	_, err := wrapped.SendRequest(context.Background(), "op", nil)
	require.Error(t, err)
	assert.Equal(t, 1, fake.sendCalls)
}

func TestRetryMiddlewareDoesNotRetryClosedTransport(t *testing.T) {
	fake := newFakeTransport()
	fake.sendResults = []error{pmerrors.TransportClosed("send_request")}

	wrapped := RetryMiddleware(DefaultRetryConfig())(fake)

	_, err := wrapped.SendRequest(context.Background(), "op", nil)
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTransportClosed))
	assert.Equal(t, 1, fake.sendCalls)
}

func TestRetryMiddlewareExhaustsAttempts(t *testing.T) {
	flaky := pmerrors.NewError(pmerrors.CodeTransportError, "flaky",
		pmerrors.CategoryTransport, pmerrors.SeverityWarning)
	fake := newFakeTransport()
	fake.sendResults = []error{flaky, flaky, flaky}

	wrapped := RetryMiddleware(RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})(fake)

	_, err := wrapped.SendRequest(context.Background(), "op", nil)
	require.Error(t, err)
	assert.Equal(t, 3, fake.sendCalls)
}

func TestObservabilityMiddlewarePassesThrough(t *testing.T) {
	fake := newFakeTransport()
	wrapped := ObservabilityMiddleware(logging.Nop(), nil)(fake)

	require.NoError(t, wrapped.Initialize(context.Background()))

	result, err := wrapped.SendRequest(context.Background(), "op", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	require.NoError(t, wrapped.SendNotification(context.Background(), "note", nil))
	assert.Equal(t, []string{"note"}, fake.notes)

	assert.Equal(t, "pm_session_fake", wrapped.SessionID())
	assert.Equal(t, StateConnected, wrapped.State())
}
