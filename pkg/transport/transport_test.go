package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
)

func TestBaseTransportHandleRequest(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	bt.RegisterRequestHandler("echo", func(ctx context.Context, params interface{}) (interface{}, error) {
		return map[string]string{"ok": "yes"}, nil
	})

	req, err := protocol.NewRequest("req-1", "echo", nil)
	require.NoError(t, err)

	resp, err := bt.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"ok":"yes"}`, string(resp.Result))
}

func TestBaseTransportMethodNotFound(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	req, err := protocol.NewRequest("req-1", "no-such-method", nil)
	require.NoError(t, err)

	resp, err := bt.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrorCode(pmerrors.CodeMethodNotFound), resp.Error.Code)
}

func TestBaseTransportHandlerPanicBecomesInternalError(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	bt.RegisterRequestHandler("boom", func(ctx context.Context, params interface{}) (interface{}, error) {
		panic("handler exploded")
	})

	req, err := protocol.NewRequest("req-1", "boom", nil)
	require.NoError(t, err)

	resp, err := bt.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrorCode(pmerrors.CodeInternalError), resp.Error.Code)
}

func TestBaseTransportHandlerErrorCodePropagates(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	bt.RegisterRequestHandler("reject", func(ctx context.Context, params interface{}) (interface{}, error) {
		return nil, pmerrors.OriginRejected("https://evil.example")
	})

	req, err := protocol.NewRequest("req-1", "reject", nil)
	require.NoError(t, err)

	resp, err := bt.HandleRequest(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ErrorCode(pmerrors.CodeOriginRejected), resp.Error.Code)
}

func TestBaseTransportUnknownNotificationIgnored(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	note, err := protocol.NewNotification("nobody/listens", nil)
	require.NoError(t, err)
	assert.NoError(t, bt.HandleNotification(context.Background(), note))
}

func TestBaseTransportResponseCorrelation(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	ch, err := bt.RegisterPending("req-7")
	require.NoError(t, err)

	resp, err := protocol.NewResponse("req-7", "done")
	require.NoError(t, err)
	go bt.HandleResponse(resp)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := bt.WaitForResponse(ctx, "req-7", ch)
	require.NoError(t, err)
	assert.JSONEq(t, `"done"`, string(got.Result))
	assert.Equal(t, 0, bt.PendingCount())
}

func TestBaseTransportCleanupWakesWaiters(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	ch, err := bt.RegisterPending("req-9")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, werr := bt.WaitForResponse(context.Background(), "req-9", ch)
		errCh <- werr
	}()

	bt.Cleanup()

	select {
	case werr := <-errCh:
		require.Error(t, werr)
		assert.True(t, pmerrors.IsCode(werr, pmerrors.CodeTransportClosed))
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by cleanup")
	}

	_, err = bt.RegisterPending("req-10")
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTransportClosed))
}

func TestBaseTransportWaitCancellation(t *testing.T) {
	bt := NewBaseTransport(logging.Nop())

	ch, err := bt.RegisterPending("req-11")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = bt.WaitForResponse(ctx, "req-11", ch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, bt.PendingCount())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestStateMachineTransitions(t *testing.T) {
	var seen []State
	sm := newStateMachine(func(s State) { seen = append(seen, s) })

	assert.Equal(t, StateIdle, sm.current())
	assert.True(t, sm.setIf(StatePreparing, StateIdle))
	assert.False(t, sm.setIf(StateConnected, StateIdle))

	sm.set(StateFailed)
	assert.Equal(t, StateFailed, sm.current())

	// Terminal states admit no further transitions.
	sm.set(StateClosed)
	assert.Equal(t, StateFailed, sm.current())
	assert.Equal(t, []State{StatePreparing, StateFailed}, seen)
}
