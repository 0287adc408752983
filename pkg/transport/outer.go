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

var _ Transport = (*OuterTransport)(nil)

// OuterTransport is the client side of a postMessage channel. It owns the
// embedded frame: it navigates the frame to the server URL, initiates the
// handshake, and correlates request/response traffic.
type OuterTransport struct {
	*BaseTransport

	cfg     OuterConfig
	ctrl    *window.FrameControl
	sm      *stateMachine
	logger  logging.Logger
	metrics observability.MetricsProvider

	initMu    sync.Mutex
	prepared  bool
	readyOnce sync.Once
	readyCh   chan struct{}
	ackCh     chan *protocol.HandshakeAck
	done      chan struct{}
	closeOnce sync.Once

	sessMu     sync.RWMutex
	sessionID  string
	negotiated string
}

// NewOuterTransport creates an outer transport over the given frame control.
func NewOuterTransport(ctrl *window.FrameControl, cfg OuterConfig) (*OuterTransport, error) {
	if ctrl == nil {
		return nil, pmerrors.NewError(pmerrors.CodeInvalidParams, "frame control is required",
			pmerrors.CategoryValidation, pmerrors.SeverityError)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &OuterTransport{
		BaseTransport: NewBaseTransport(cfg.Logger),
		cfg:           cfg,
		ctrl:          ctrl,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		readyCh:       make(chan struct{}),
		ackCh:         make(chan *protocol.HandshakeAck, 1),
		done:          make(chan struct{}),
		sessionID:     cfg.SessionID,
	}
	t.sm = newStateMachine(func(s State) {
		cfg.Metrics.SetConnectionState(s.String())
	})
	return t, nil
}

// SessionID returns the active session identifier.
func (t *OuterTransport) SessionID() string {
	t.sessMu.RLock()
	defer t.sessMu.RUnlock()
	return t.sessionID
}

// NegotiatedVersion returns the protocol version agreed during the handshake.
func (t *OuterTransport) NegotiatedVersion() string {
	t.sessMu.RLock()
	defer t.sessMu.RUnlock()
	return t.negotiated
}

// State reports the current lifecycle state.
func (t *OuterTransport) State() State {
	return t.sm.current()
}

// Initialize navigates the frame, waits for it to settle, and performs the
// session handshake. It is idempotent: a connected transport returns nil
// immediately, and a half-prepared transport resumes where it left off
// without attaching a second listener or reloading the frame.
func (t *OuterTransport) Initialize(ctx context.Context) error {
	t.initMu.Lock()
	defer t.initMu.Unlock()

	switch s := t.sm.current(); s {
	case StateConnected:
		return nil
	case StateClosing, StateClosed, StateFailed:
		return pmerrors.InvalidState("initialize", s.String())
	}

	if !t.prepared {
		if err := t.prepare(ctx); err != nil {
			t.sm.set(StateFailed)
			return err
		}
		t.prepared = true
	}
	return t.handshake(ctx)
}

func (t *OuterTransport) prepare(ctx context.Context) error {
	t.sm.set(StatePreparing)

	// The listener goes up before navigation so the server's readiness
	// signal cannot slip past us.
	t.ctrl.ContentWindow().SetMessageHandler(t.onMessage)

	navCtx, cancel := context.WithTimeout(ctx, t.cfg.NavigationTimeout)
	defer cancel()
	if err := t.ctrl.Navigate(navCtx, t.cfg.ServerURL); err != nil {
		return err
	}

	// Wait out the settle delay, but let an early readiness signal from
	// the server cut it short.
	select {
	case <-t.readyCh:
		t.logger.Debug("server signalled ready before settle delay elapsed")
	case <-time.After(t.cfg.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return pmerrors.TransportClosed("prepare")
	}
	return nil
}

func (t *OuterTransport) handshake(ctx context.Context) error {
	t.sessMu.Lock()
	if t.sessionID == "" {
		id, err := GenerateSessionID()
		if err != nil {
			t.sessMu.Unlock()
			return err
		}
		t.sessionID = id
	}
	sessionID := t.sessionID
	t.sessMu.Unlock()

	t.sm.set(StateHandshaking)
	start := time.Now()

	init := protocol.HandshakeInit{
		SessionID:  sessionID,
		MinVersion: t.cfg.MinVersion,
		MaxVersion: t.cfg.MaxVersion,
	}
	if err := t.postEnvelope(protocol.KindHandshakeInit, init); err != nil {
		t.sm.set(StateFailed)
		t.metrics.RecordHandshake("send_failed", time.Since(start))
		return err
	}

	var ack *protocol.HandshakeAck
	select {
	case ack = <-t.ackCh:
	case <-time.After(t.cfg.HandshakeTimeout):
		t.sm.set(StateFailed)
		t.metrics.RecordHandshake("timeout", time.Since(start))
		err := pmerrors.HandshakeTimeout(sessionID, t.cfg.HandshakeTimeout)
		t.ctrl.ReportError(err)
		return err
	case <-ctx.Done():
		t.sm.set(StateFailed)
		t.metrics.RecordHandshake("cancelled", time.Since(start))
		return ctx.Err()
	case <-t.done:
		return pmerrors.TransportClosed("handshake")
	}

	version, ok := protocol.NegotiateVersion(t.cfg.MinVersion, t.cfg.MaxVersion, ack.MinVersion, ack.MaxVersion)
	if !ok {
		err := pmerrors.VersionIncompatible(t.cfg.MinVersion, t.cfg.MaxVersion, ack.MinVersion, ack.MaxVersion)
		complete := protocol.HandshakeComplete{SessionID: sessionID, Error: err.Message()}
		if perr := t.postEnvelope(protocol.KindHandshakeComplete, complete); perr != nil {
			t.logger.Warn("failed to report incompatible version to server", logging.ErrorField(perr))
		}
		t.sm.set(StateFailed)
		t.metrics.RecordHandshake("version_incompatible", time.Since(start))
		t.ctrl.ReportError(err)
		return err
	}

	complete := protocol.HandshakeComplete{SessionID: sessionID, NegotiatedVersion: version}
	if err := t.postEnvelope(protocol.KindHandshakeComplete, complete); err != nil {
		t.sm.set(StateFailed)
		t.metrics.RecordHandshake("send_failed", time.Since(start))
		return err
	}

	t.sessMu.Lock()
	t.negotiated = version
	t.sessMu.Unlock()
	t.sm.set(StateConnected)
	t.metrics.RecordHandshake("success", time.Since(start))
	t.logger.Info("session established",
		logging.String("session_id", sessionID),
		logging.String("protocol_version", version))
	return nil
}

// onMessage is the single entry point for traffic from the frame. Checks run
// outside-in: origin first, then envelope shape, then session, then kind.
func (t *OuterTransport) onMessage(ev window.MessageEvent) {
	if exp := t.ctrl.ExpectedOrigin(); exp != window.WildcardOrigin && ev.Origin != exp {
		t.metrics.RecordRejected("origin")
		t.logger.Warn("dropping message from unexpected origin",
			logging.String("expected", exp),
			logging.ErrorField(pmerrors.OriginRejected(ev.Origin)))
		return
	}

	if protocol.IsReadyMessage(ev.Data) {
		t.readyOnce.Do(func() { close(t.readyCh) })
		return
	}

	env, err := protocol.ParseEnvelope(ev.Data)
	if err != nil {
		t.metrics.RecordRejected("malformed")
		t.logger.Warn("dropping malformed envelope",
			logging.ErrorField(pmerrors.MalformedEnvelope(err)))
		return
	}
	env.SourceOrigin = ev.Origin

	if sid := t.SessionID(); sid == "" || env.SessionID != sid {
		t.metrics.RecordRejected("session")
		t.logger.Warn("dropping envelope with foreign session",
			logging.ErrorField(pmerrors.SessionMismatch(sid, env.SessionID)))
		return
	}
	t.metrics.RecordEnvelope("inbound", string(env.Kind))

	switch env.Kind {
	case protocol.KindHandshakeAck:
		var ack protocol.HandshakeAck
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			t.metrics.RecordRejected("malformed")
			t.logger.Warn("dropping malformed handshake ack",
				logging.ErrorField(pmerrors.MalformedEnvelope(err)))
			return
		}
		if t.sm.current() != StateHandshaking {
			t.logger.Debug("ignoring handshake ack outside handshake")
			return
		}
		select {
		case t.ackCh <- &ack:
		default:
		}
	case protocol.KindRPC:
		if t.sm.current() != StateConnected {
			t.metrics.RecordRejected("state")
			t.logger.Warn("dropping rpc envelope before connection")
			return
		}
		t.dispatchRPC(context.Background(), env.Payload, t.sendResponse)
	case protocol.KindClose:
		t.logger.Info("server requested close", logging.String("session_id", env.SessionID))
		go t.shutdownOnce(false)
	default:
		t.logger.Warn("dropping unexpected envelope kind",
			logging.String("kind", string(env.Kind)))
	}
}

func (t *OuterTransport) sendResponse(resp *protocol.Response) error {
	return t.postEnvelope(protocol.KindRPC, resp)
}

func (t *OuterTransport) postEnvelope(kind protocol.EnvelopeKind, payload interface{}) error {
	env, err := protocol.NewEnvelope(t.SessionID(), kind, payload)
	if err != nil {
		return err
	}
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	if err := t.ctrl.Post(data); err != nil {
		return err
	}
	t.metrics.RecordEnvelope("outbound", string(kind))
	return nil
}

// SendRequest sends a request to the server and waits for the response. The
// wait is bounded by the context deadline, or by the configured request
// timeout when the context carries none.
func (t *OuterTransport) SendRequest(ctx context.Context, method string, params interface{}) (interface{}, error) {
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

// SendNotification sends a one-way notification to the server.
func (t *OuterTransport) SendNotification(ctx context.Context, method string, params interface{}) error {
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
// closes, whichever comes first.
func (t *OuterTransport) Start(ctx context.Context) error {
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

// Stop shuts the transport down: it notifies the server, detaches the
// message listener, and fails every pending request so no waiter hangs.
// Stop is idempotent.
func (t *OuterTransport) Stop(ctx context.Context) error {
	t.shutdownOnce(true)
	return nil
}

func (t *OuterTransport) shutdownOnce(notifyPeer bool) {
	t.closeOnce.Do(func() {
		wasConnected := t.sm.setIf(StateClosing, StateConnected)
		if !wasConnected {
			t.sm.setIf(StateClosing, StateIdle, StatePreparing, StateHandshaking)
		}

		if notifyPeer && wasConnected {
			env := map[string]string{"reason": "client shutdown"}
			if err := t.postEnvelope(protocol.KindClose, env); err != nil {
				t.logger.Debug("failed to notify server of close", logging.ErrorField(err))
			}
		}

		t.ctrl.ContentWindow().SetMessageHandler(nil)
		close(t.done)
		t.Cleanup()
		t.sm.set(StateClosed)
		t.logger.Info("transport closed", logging.String("session_id", t.SessionID()))
	})
}
