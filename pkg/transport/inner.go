package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/observability"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
	"github.com/adithya1012/mcp-postmessage/pkg/window"
)

var _ Transport = (*InnerTransport)(nil)

// InnerTransport is the server side of a postMessage channel. It runs inside
// the embedded frame: it announces readiness to the parent page, answers the
// handshake, and serves RPC traffic once connected.
type InnerTransport struct {
	*BaseTransport

	cfg     InnerConfig
	parent  *window.ParentControl
	sm      *stateMachine
	logger  logging.Logger
	metrics observability.MetricsProvider

	initMu    sync.Mutex
	prepared  bool
	connCh    chan error
	done      chan struct{}
	closeOnce sync.Once

	sessMu     sync.RWMutex
	sessionID  string
	negotiated string

	handshakeStart time.Time
}

// NewInnerTransport creates an inner transport over the given parent control.
func NewInnerTransport(parent *window.ParentControl, cfg InnerConfig) (*InnerTransport, error) {
	if parent == nil {
		return nil, pmerrors.NewError(pmerrors.CodeInvalidParams, "parent control is required",
			pmerrors.CategoryValidation, pmerrors.SeverityError)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &InnerTransport{
		BaseTransport: NewBaseTransport(cfg.Logger),
		cfg:           cfg,
		parent:        parent,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		connCh:        make(chan error, 1),
		done:          make(chan struct{}),
	}
	t.sm = newStateMachine(func(s State) {
		cfg.Metrics.SetConnectionState(s.String())
	})
	return t, nil
}

// SessionID returns the session identifier assigned by the client, or ""
// before the handshake has begun.
func (t *InnerTransport) SessionID() string {
	t.sessMu.RLock()
	defer t.sessMu.RUnlock()
	return t.sessionID
}

// NegotiatedVersion returns the protocol version agreed during the handshake.
func (t *InnerTransport) NegotiatedVersion() string {
	t.sessMu.RLock()
	defer t.sessMu.RUnlock()
	return t.negotiated
}

// State reports the current lifecycle state.
func (t *InnerTransport) State() State {
	return t.sm.current()
}

// RequiresVisibleSetup reports whether the server asked the client to keep
// the frame visible during preparation.
func (t *InnerTransport) RequiresVisibleSetup() bool {
	return t.cfg.RequiresVisibleSetup
}

// Initialize attaches the message listener, announces readiness to the
// parent page, and waits for the client to drive the handshake to
// completion. The wait is bounded by the configured handshake timeout.
func (t *InnerTransport) Initialize(ctx context.Context) error {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	switch s := t.sm.current(); s {
	case StateConnected:
		return nil
	case StateClosing, StateClosed, StateFailed:
		return pmerrors.InvalidState("initialize", s.String())
	}

	if !t.prepared {
		// Subscribe before anything else so no handshake traffic can race
		// past an unattached listener.
		t.parent.Subscribe(t.onMessage)
		if err := t.announceReady(); err != nil {
			t.logger.Warn("failed to announce readiness", logging.ErrorField(err))
		}
		t.prepared = true
		t.sm.set(StatePreparing)
	}

	select {
	case err := <-t.connCh:
		if err != nil {
			t.sm.set(StateFailed)
			return err
		}
		return nil
	case <-time.After(t.cfg.HandshakeTimeout):
		t.sm.set(StateFailed)
		return pmerrors.HandshakeTimeout(t.SessionID(), t.cfg.HandshakeTimeout)
	case <-ctx.Done():
		t.sm.set(StateFailed)
		return ctx.Err()
	case <-t.done:
		return pmerrors.TransportClosed("initialize")
	}
}

// announceReady posts the readiness signal so the client can cut its settle
// delay short.
func (t *InnerTransport) announceReady() error {
	ready := protocol.ReadyMessage{Type: protocol.ReadyMessageType}
	data, err := json.Marshal(ready)
	if err != nil {
		return err
	}
	return t.parent.PostToParent(data)
}

// onMessage handles traffic from the parent page. Origin validation already
// happened in the parent control; checks here run shape first, then session,
// then kind.
func (t *InnerTransport) onMessage(ev window.MessageEvent) {
	env, err := protocol.ParseEnvelope(ev.Data)
	if err != nil {
		t.metrics.RecordRejected("malformed")
		t.logger.Warn("dropping malformed envelope",
			logging.ErrorField(pmerrors.MalformedEnvelope(err)))
		return
	}
	env.SourceOrigin = ev.Origin

	switch env.Kind {
	case protocol.KindHandshakeInit:
		t.handleInit(env)
		return
	case protocol.KindHandshakeComplete:
		t.handleComplete(env)
		return
	}

	if sid := t.SessionID(); sid == "" || env.SessionID != sid {
		t.metrics.RecordRejected("session")
		t.logger.Warn("dropping envelope with foreign session",
			logging.ErrorField(pmerrors.SessionMismatch(sid, env.SessionID)))
		return
	}
	t.metrics.RecordEnvelope("inbound", string(env.Kind))

	switch env.Kind {
	case protocol.KindRPC:
		if t.sm.current() != StateConnected {
			t.metrics.RecordRejected("state")
			t.logger.Warn("dropping rpc envelope before connection")
			return
		}
		t.dispatchRPC(context.Background(), env.Payload, t.sendResponse)
	case protocol.KindClose:
		t.logger.Info("client requested close", logging.String("session_id", env.SessionID))
		go t.shutdownOnce(false)
	default:
		t.logger.Warn("dropping unexpected envelope kind",
			logging.String("kind", string(env.Kind)))
	}
}

// handleInit adopts the session proposed by the client and answers with the
// server's version range. A replayed init for the current session gets the
// same ack again; an init for a different session while one is in flight is
// dropped.
func (t *InnerTransport) handleInit(env *protocol.Envelope) {
	var init protocol.HandshakeInit
	if err := json.Unmarshal(env.Payload, &init); err != nil {
		t.metrics.RecordRejected("malformed")
		t.logger.Warn("dropping malformed handshake init",
			logging.ErrorField(pmerrors.MalformedEnvelope(err)))
		return
	}

	t.sessMu.Lock()
	switch {
	case t.sessionID == "":
		t.sessionID = env.SessionID
		t.handshakeStart = time.Now()
	case t.sessionID != env.SessionID:
		t.sessMu.Unlock()
		t.metrics.RecordRejected("session")
		t.logger.Warn("dropping handshake init for foreign session",
			logging.ErrorField(pmerrors.SessionMismatch(t.SessionID(), env.SessionID)))
		return
	}
	t.sessMu.Unlock()

	if !t.sm.setIf(StateHandshaking, StateIdle, StatePreparing, StateHandshaking) {
		t.logger.Debug("ignoring handshake init in state",
			logging.String("state", t.sm.current().String()))
		return
	}
	t.metrics.RecordEnvelope("inbound", string(env.Kind))

	ack := protocol.HandshakeAck{
		SessionID:  env.SessionID,
		MinVersion: t.cfg.MinVersion,
		MaxVersion: t.cfg.MaxVersion,
	}
	if err := t.postEnvelope(protocol.KindHandshakeAck, ack); err != nil {
		t.logger.Error("failed to send handshake ack", logging.ErrorField(err))
	}
}

// handleComplete finishes the handshake. An error from the client marks the
// transport failed; otherwise the negotiated version is recorded and RPC
// traffic may flow.
func (t *InnerTransport) handleComplete(env *protocol.Envelope) {
	var complete protocol.HandshakeComplete
	if err := json.Unmarshal(env.Payload, &complete); err != nil {
		t.metrics.RecordRejected("malformed")
		t.logger.Warn("dropping malformed handshake completion",
			logging.ErrorField(pmerrors.MalformedEnvelope(err)))
		return
	}

	if sid := t.SessionID(); sid == "" || env.SessionID != sid {
		t.metrics.RecordRejected("session")
		t.logger.Warn("dropping handshake completion for foreign session",
			logging.ErrorField(pmerrors.SessionMismatch(sid, env.SessionID)))
		return
	}
	t.metrics.RecordEnvelope("inbound", string(env.Kind))

	if complete.Error != "" {
		if t.sm.setIf(StateFailed, StateHandshaking) {
			t.metrics.RecordHandshake("rejected", time.Since(t.handshakeStart))
			err := pmerrors.NewError(pmerrors.CodeVersionIncompatible, complete.Error,
				pmerrors.CategoryProtocol, pmerrors.SeverityError)
			select {
			case t.connCh <- err:
			default:
			}
		}
		return
	}

	if !t.sm.setIf(StateConnected, StateHandshaking) {
		t.logger.Debug("ignoring handshake completion in state",
			logging.String("state", t.sm.current().String()))
		return
	}

	t.sessMu.Lock()
	t.negotiated = complete.NegotiatedVersion
	t.sessMu.Unlock()
	t.metrics.RecordHandshake("success", time.Since(t.handshakeStart))
	t.logger.Info("session established",
		logging.String("session_id", env.SessionID),
		logging.String("protocol_version", complete.NegotiatedVersion))

	select {
	case t.connCh <- nil:
	default:
	}
}

func (t *InnerTransport) sendResponse(resp *protocol.Response) error {
	return t.postEnvelope(protocol.KindRPC, resp)
}

func (t *InnerTransport) postEnvelope(kind protocol.EnvelopeKind, payload interface{}) error {
	env, err := protocol.NewEnvelope(t.SessionID(), kind, payload)
	if err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := t.parent.PostToParent(data); err != nil {
		return err
	}
	t.metrics.RecordEnvelope("outbound", string(kind))
	return nil
}

// SendRequest sends a request to the client and waits for the response.
func (t *InnerTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
	if s := t.sm.current(); s != StateConnected {
		return nil, pmerrors.InvalidState("send_request", s.String())
	}

	id := t.GenerateID()
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch, err := t.RegisterPending(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := t.postEnvelope(protocol.KindRPC, req); err != nil {
		t.metrics.RecordRequest(method, "send_failed", time.Since(start))
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := t.WaitForResponse(ctx, id, ch)
	if err != nil {
		t.metrics.RecordRequest(method, "error", time.Since(start))
		return nil, err
	}
	if resp.Error != nil {
		t.metrics.RecordRequest(method, "error", time.Since(start))
		return nil, resp.Error
	}
	t.metrics.RecordRequest(method, "success", time.Since(start))
	return resp.Result, nil
}

// SendNotification sends a one-way notification to the client.
func (t *InnerTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
	if s := t.sm.current(); s != StateConnected {
		return pmerrors.InvalidState("send_notification", s.String())
	}
	note, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return t.postEnvelope(protocol.KindRPC, note)
}

// Start runs the transport until the context is cancelled or the transport
// closes.
func (t *InnerTransport) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return t.Stop(context.Background())
		case <-t.done:
			return nil
		}
	})
	return g.Wait()
}

// Stop shuts the transport down and fails every pending request. It is
// idempotent.
func (t *InnerTransport) Stop(ctx context.Context) error {
	t.shutdownOnce(true)
	return nil
}

func (t *InnerTransport) shutdownOnce(notifyPeer bool) {
	t.closeOnce.Do(func() {
		wasConnected := t.sm.setIf(StateClosing, StateConnected)
		if !wasConnected {
			t.sm.setIf(StateClosing, StateIdle, StatePreparing, StateHandshaking)
		}

		if notifyPeer && wasConnected {
			env := map[string]string{"reason": "server shutdown"}
			if err := t.postEnvelope(protocol.KindClose, env); err != nil {
				t.logger.Debug("failed to notify client of close", logging.ErrorField(err))
			}
		}

		t.parent.Subscribe(nil)
		close(t.done)
		t.Cleanup()
		t.sm.set(StateClosed)
		t.logger.Info("transport closed", logging.String("session_id", t.SessionID()))
	})
}
