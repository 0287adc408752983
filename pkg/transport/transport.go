package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
)

// RequestHandler processes an incoming request and returns a result or error.
type RequestHandler func(ctx context.Context, params interface{}) (interface{}, error)

// NotificationHandler processes an incoming notification.
type NotificationHandler func(ctx context.Context, params interface{}) error

// Transport is the interface implemented by both sides of a postMessage
// channel. Initialize drives preparation and the session handshake;
// SendRequest and SendNotification are valid only once the transport has
// reached the connected state.
type Transport interface {
	// Initialize prepares the transport and performs the handshake. It is
	// idempotent: calling it on an already connected transport is a no-op.
	Initialize(ctx context.Context) error

	// Start runs the transport until the context is cancelled or the
	// transport is closed.
	Start(ctx context.Context) error

	// Stop shuts down the transport. It is safe to call multiple times.
	Stop(ctx context.Context) error

	// SendRequest sends a request and waits for the matching response.
	SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error)

	// SendNotification sends a one-way notification.
	SendNotification(ctx context.Context, method string, params interface{}) error

	// RegisterRequestHandler registers a handler for incoming requests.
	RegisterRequestHandler(method string, handler RequestHandler)

	// RegisterNotificationHandler registers a handler for incoming
	// notifications.
	RegisterNotificationHandler(method string, handler NotificationHandler)

	// SessionID returns the session identifier, or "" before the handshake
	// has assigned one.
	SessionID() string

	// NegotiatedVersion returns the protocol version agreed during the
	// handshake, or "" before the transport is connected.
	NegotiatedVersion() string

	// State reports the current lifecycle state.
	State() State
}

// BaseTransport provides request correlation and handler dispatch shared by
// the outer and inner transports.
type BaseTransport struct {
	mu                   sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	pendingRequests      map[string]chan *protocol.Response
	closed               bool
	nextID               atomic.Uint64
	logger               logging.Logger
}

// NewBaseTransport creates a BaseTransport. A nil logger is replaced with a
// no-op logger.
func NewBaseTransport(logger logging.Logger) *BaseTransport {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BaseTransport{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		pendingRequests:      make(map[string]chan *protocol.Response),
		logger:               logger,
	}
}

// RegisterRequestHandler registers a handler for the given method.
func (t *BaseTransport) RegisterRequestHandler(method string, handler RequestHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestHandlers[method] = handler
}

// RegisterNotificationHandler registers a handler for the given method.
func (t *BaseTransport) RegisterNotificationHandler(method string, handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notificationHandlers[method] = handler
}

// GenerateID returns a unique request identifier.
func (t *BaseTransport) GenerateID() string {
	return fmt.Sprintf("req-%d", t.nextID.Add(1))
}

// HandleRequest dispatches a request to its registered handler and builds the
// response. Handler panics are recovered and converted into internal errors.
func (t *BaseTransport) HandleRequest(ctx context.Context, request *protocol.Request) (resp *protocol.Response, err error) {
	t.mu.RLock()
	handler, ok := t.requestHandlers[request.Method]
	t.mu.RUnlock()

	if !ok {
		return protocol.NewErrorResponse(request.ID,
			protocol.ErrorCode(pmerrors.CodeMethodNotFound),
			fmt.Sprintf("method not found: %s", request.Method), nil)
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("request handler panicked",
				logging.String("method", request.Method),
				logging.String("panic", fmt.Sprintf("%v", r)))
			resp, err = protocol.NewErrorResponse(request.ID,
				protocol.ErrorCode(pmerrors.CodeInternalError), "internal error", nil)
		}
	}()

	result, herr := handler(ctx, request.Params)
	if herr != nil {
		if te, ok := pmerrors.AsTransportError(herr); ok {
			return protocol.NewErrorResponse(request.ID,
				protocol.ErrorCode(te.Code()), te.Message(), te.Details())
		}
		return protocol.NewErrorResponse(request.ID,
			protocol.ErrorCode(pmerrors.CodeInternalError), herr.Error(), nil)
	}
	return protocol.NewResponse(request.ID, result)
}

// HandleNotification dispatches a notification to its registered handler.
// Unknown notification methods are ignored.
func (t *BaseTransport) HandleNotification(ctx context.Context, notification *protocol.Notification) error {
	t.mu.RLock()
	handler, ok := t.notificationHandlers[notification.Method]
	t.mu.RUnlock()

	if !ok {
		t.logger.Debug("no handler for notification",
			logging.String("method", notification.Method))
		return nil
	}
	return handler(ctx, notification.Params)
}

// HandleResponse routes a response to the goroutine waiting on its request
// ID. Responses with no waiter are dropped.
func (t *BaseTransport) HandleResponse(response *protocol.Response) {
	id := fmt.Sprintf("%v", response.ID)

	t.mu.Lock()
	ch, ok := t.pendingRequests[id]
	if ok {
		delete(t.pendingRequests, id)
	}
	t.mu.Unlock()

	if !ok {
		t.logger.Debug("response without pending request",
			logging.String("request_id", id))
		return
	}
	ch <- response
}

// RegisterPending registers a waiter for the given request ID. It fails if
// the transport has been cleaned up.
func (t *BaseTransport) RegisterPending(id string) (chan *protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, pmerrors.TransportClosed("send_request")
	}
	ch := make(chan *protocol.Response, 1)
	t.pendingRequests[id] = ch
	return ch, nil
}

// WaitForResponse blocks until the response for id arrives, the context is
// done, or the transport is closed. Closing the transport wakes every waiter
// with a transport-closed error so no caller hangs.
func (t *BaseTransport) WaitForResponse(ctx context.Context, id string, ch chan *protocol.Response) (*protocol.Response, error) {
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, pmerrors.TransportClosed("wait_for_response")
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pendingRequests, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Cleanup fails all pending requests and marks the transport closed. Further
// RegisterPending calls return a transport-closed error.
func (t *BaseTransport) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.pendingRequests {
		close(ch)
		delete(t.pendingRequests, id)
	}
}

// PendingCount reports the number of in-flight requests.
func (t *BaseTransport) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pendingRequests)
}

// dispatchRPC classifies a raw JSON-RPC payload and routes it to the right
// handler. Responses to outgoing requests are posted back through send.
func (t *BaseTransport) dispatchRPC(ctx context.Context, data []byte, send func(*protocol.Response) error) {
	var probe struct {
		ID     interface{}     `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.logger.Warn("dropping malformed rpc payload", logging.ErrorField(err))
		return
	}

	switch {
	case probe.Method != "" && probe.ID != nil:
		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			t.logger.Warn("dropping malformed request", logging.ErrorField(err))
			return
		}
		resp, err := t.HandleRequest(ctx, &req)
		if err != nil {
			t.logger.Error("request handling failed",
				logging.String("method", req.Method), logging.ErrorField(err))
			return
		}
		if err := send(resp); err != nil {
			t.logger.Error("failed to send response",
				logging.String("method", req.Method), logging.ErrorField(err))
		}
	case probe.Method != "":
		var note protocol.Notification
		if err := json.Unmarshal(data, &note); err != nil {
			t.logger.Warn("dropping malformed notification", logging.ErrorField(err))
			return
		}
		if err := t.HandleNotification(ctx, &note); err != nil {
			t.logger.Error("notification handling failed",
				logging.String("method", note.Method), logging.ErrorField(err))
		}
	default:
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.logger.Warn("dropping malformed response", logging.ErrorField(err))
			return
		}
		t.HandleResponse(&resp)
	}
}
