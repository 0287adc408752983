package transport

import (
	"context"
)

// Middleware wraps a Transport with additional behavior.
type Middleware func(Transport) Transport

// ChainMiddleware composes middlewares so the first in the list is the
// outermost wrapper.
func ChainMiddleware(middlewares ...Middleware) Middleware {
	return func(t Transport) Transport {
		for i := len(middlewares) - 1; i >= 0; i-- {
			t = middlewares[i](t)
		}
		return t
	}
}

// middlewareTransport delegates everything to the wrapped transport.
// Concrete middlewares embed it and override the calls they care about.
type middlewareTransport struct {
	inner Transport
}

func (m *middlewareTransport) Initialize(ctx context.Context) error {
	return m.inner.Initialize(ctx)
}

func (m *middlewareTransport) Start(ctx context.Context) error {
	return m.inner.Start(ctx)
}

func (m *middlewareTransport) Stop(ctx context.Context) error {
	return m.inner.Stop(ctx)
}

func (m *middlewareTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	return m.inner.SendRequest(ctx, method, params)
}

func (m *middlewareTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	return m.inner.SendNotification(ctx, method, params)
}

func (m *middlewareTransport) RegisterRequestHandler(method string, handler RequestHandler) {
	m.inner.RegisterRequestHandler(method, handler)
}

func (m *middlewareTransport) RegisterNotificationHandler(method string, handler NotificationHandler) {
	m.inner.RegisterNotificationHandler(method, handler)
}

func (m *middlewareTransport) SessionID() string {
	return m.inner.SessionID()
}

func (m *middlewareTransport) NegotiatedVersion() string {
	return m.inner.NegotiatedVersion()
}

func (m *middlewareTransport) State() State {
	return m.inner.State()
}
