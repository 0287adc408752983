package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
	"github.com/adithya1012/mcp-postmessage/pkg/window"
)

const (
	testHostOrigin = "https://host.example"
	testServerURL  = "https://srv.example/mcp"
)

// pairEnv wires an outer and an inner transport over an in-memory window
// pair, the way a page and its embedded frame would be wired in a browser.
type pairEnv struct {
	outer    *OuterTransport
	inner    *InnerTransport
	frame    *window.MemoryFrame
	hostWin  *window.ChannelWindow
	frameWin *window.ChannelWindow
}

func newPairEnv(t *testing.T, outerCfg OuterConfig, innerCfg InnerConfig) *pairEnv {
	t.Helper()

	hostWin, frameWin := window.NewWindowPair(testHostOrigin, "https://srv.example")
	frame := window.NewMemoryFrame(hostWin)
	ctrl, err := window.NewFrameControl(window.FrameControlConfig{Frame: frame})
	require.NoError(t, err)

	if outerCfg.ServerURL == "" {
		outerCfg.ServerURL = testServerURL
	}
	if outerCfg.SettleDelay == 0 {
		outerCfg.SettleDelay = 20 * time.Millisecond
	}
	if outerCfg.HandshakeTimeout == 0 {
		outerCfg.HandshakeTimeout = 2 * time.Second
	}
	outer, err := NewOuterTransport(ctrl, outerCfg)
	require.NoError(t, err)

	pc, err := window.NewParentControl(window.ParentControlConfig{
		Parent:         frameWin,
		AllowedOrigins: []string{testHostOrigin},
	})
	require.NoError(t, err)

	if innerCfg.HandshakeTimeout == 0 {
		innerCfg.HandshakeTimeout = 2 * time.Second
	}
	inner, err := NewInnerTransport(pc, innerCfg)
	require.NoError(t, err)

	return &pairEnv{outer: outer, inner: inner, frame: frame, hostWin: hostWin, frameWin: frameWin}
}

// connect runs both initializations concurrently, the inner side first, and
// returns the inner side's result once both settle.
func (e *pairEnv) connect(t *testing.T) (outerErr, innerErr error) {
	t.Helper()

	innerCh := make(chan error, 1)
	go func() { innerCh <- e.inner.Initialize(context.Background()) }()

	require.Eventually(t, func() bool {
		return e.inner.State() != StateIdle
	}, time.Second, 2*time.Millisecond, "inner transport never started preparing")

	outerErr = e.outer.Initialize(context.Background())

	select {
	case innerErr = <-innerCh:
	case <-time.After(3 * time.Second):
		t.Fatal("inner initialization did not settle")
	}
	return outerErr, innerErr
}

func TestHandshakeEstablishesSession(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	assert.Equal(t, StateConnected, env.outer.State())
	assert.Equal(t, StateConnected, env.inner.State())
	assert.Equal(t, env.outer.SessionID(), env.inner.SessionID())
	assert.True(t, ValidSessionID(env.outer.SessionID()))
	assert.Equal(t, "1.0", env.outer.NegotiatedVersion())
	assert.Equal(t, "1.0", env.inner.NegotiatedVersion())
}

func TestHandshakeWithRelativeServerURL(t *testing.T) {
	// A relative URL yields the wildcard expected origin; the outer side
	// must still accept the ack instead of dropping all inbound traffic.
	env := newPairEnv(t, OuterConfig{ServerURL: "frame.html"}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	assert.Equal(t, StateConnected, env.outer.State())
	assert.Equal(t, StateConnected, env.inner.State())
	assert.Equal(t, env.outer.SessionID(), env.inner.SessionID())
}

func TestHandshakePicksHighestCommonVersion(t *testing.T) {
	env := newPairEnv(t,
		OuterConfig{MinVersion: "1.0", MaxVersion: "2.5"},
		InnerConfig{MinVersion: "1.2", MaxVersion: "3.0"})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	assert.Equal(t, "2.5", env.outer.NegotiatedVersion())
	assert.Equal(t, "2.5", env.inner.NegotiatedVersion())
}

func TestHandshakeVersionIncompatible(t *testing.T) {
	env := newPairEnv(t,
		OuterConfig{MinVersion: "2.0", MaxVersion: "2.0"},
		InnerConfig{MinVersion: "1.0", MaxVersion: "1.0"})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.Error(t, outerErr)
	assert.True(t, pmerrors.IsCode(outerErr, pmerrors.CodeVersionIncompatible))
	require.Error(t, innerErr)
	assert.True(t, pmerrors.IsCode(innerErr, pmerrors.CodeVersionIncompatible))

	assert.Equal(t, StateFailed, env.outer.State())
	assert.Equal(t, StateFailed, env.inner.State())

	// A failed transport stays failed; re-initialization is refused.
	err := env.outer.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTransportError))
}

func TestHandshakeTimesOutWithoutServer(t *testing.T) {
	env := newPairEnv(t, OuterConfig{
		SettleDelay:      -1,
		HandshakeTimeout: 50 * time.Millisecond,
	}, InnerConfig{})

	// The inner transport is never initialized, so no ack ever comes.
	err := env.outer.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeHandshakeTimeout))
	assert.Equal(t, StateFailed, env.outer.State())
}

func TestHandshakeFailureReachesFrameErrorHook(t *testing.T) {
	hostWin, _ := window.NewWindowPair(testHostOrigin, "https://srv.example")
	frame := window.NewMemoryFrame(hostWin)

	faults := make(chan error, 2)
	ctrl, err := window.NewFrameControl(window.FrameControlConfig{
		Frame:   frame,
		OnError: func(err error) { faults <- err },
	})
	require.NoError(t, err)

	outer, err := NewOuterTransport(ctrl, OuterConfig{
		ServerURL:        testServerURL,
		SettleDelay:      -1,
		HandshakeTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Error(t, outer.Initialize(context.Background()))

	select {
	case hookErr := <-faults:
		assert.True(t, pmerrors.IsCode(hookErr, pmerrors.CodeHandshakeTimeout))
	case <-time.After(time.Second):
		t.Fatal("frame error hook never observed the handshake failure")
	}
}

func TestNavigationFailureFailsInitialize(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	env.frame.FailLoadsWith(assert.AnError)

	err := env.outer.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeNavigationFailed))
	assert.Equal(t, StateFailed, env.outer.State())
}

func TestNavigationTimeoutFailsInitialize(t *testing.T) {
	env := newPairEnv(t, OuterConfig{
		NavigationTimeout: 30 * time.Millisecond,
	}, InnerConfig{})
	env.frame.BlockLoads()

	err := env.outer.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeNavigationTimeout))
	assert.Equal(t, StateFailed, env.outer.State())
}

func TestInitializeIsIdempotent(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	loads := make(chan string, 4)
	env.frame.OnLoad(func(url string) { loads <- url })

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	require.NoError(t, env.outer.Initialize(context.Background()))
	require.NoError(t, env.inner.Initialize(context.Background()))
	assert.Equal(t, StateConnected, env.outer.State())

	assert.Len(t, loads, 1, "frame must not be reloaded by repeat initialization")
}

func TestRequestRoundTrip(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	env.inner.RegisterRequestHandler("weather/current", func(ctx context.Context, params interface{}) (interface{}, error) {
		return map[string]interface{}{"tempC": 21}, nil
	})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	result, err := env.outer.SendRequest(context.Background(), "weather/current", nil)
	require.NoError(t, err)

	var payload struct {
		TempC int `json:"tempC"`
	}
	require.NoError(t, json.Unmarshal(result.(json.RawMessage), &payload))
	assert.Equal(t, 21, payload.TempC)
}

func TestNotificationDelivery(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	received := make(chan struct{}, 1)
	env.inner.RegisterNotificationHandler("status/changed", func(ctx context.Context, params interface{}) error {
		received <- struct{}{}
		return nil
	})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	require.NoError(t, env.outer.SendNotification(context.Background(), "status/changed", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("notification never reached the inner handler")
	}
}

func TestServerInitiatedRequest(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	env.outer.RegisterRequestHandler("ui/confirm", func(ctx context.Context, params interface{}) (interface{}, error) {
		return map[string]bool{"confirmed": true}, nil
	})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	result, err := env.inner.SendRequest(context.Background(), "ui/confirm", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confirmed":true}`, string(result.(json.RawMessage)))
}

func TestStopIsIdempotentAndNotifiesPeer(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	require.NoError(t, env.outer.Stop(context.Background()))
	require.NoError(t, env.outer.Stop(context.Background()))
	assert.Equal(t, StateClosed, env.outer.State())

	// The close envelope tears the inner side down too.
	require.Eventually(t, func() bool {
		return env.inner.State() == StateClosed
	}, time.Second, 5*time.Millisecond)

	_, err := env.outer.SendRequest(context.Background(), "anything", nil)
	require.Error(t, err)
	assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTransportError))
}

func TestStopReleasesPendingRequests(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.inner.Stop(context.Background())

	release := make(chan struct{})
	defer close(release)
	env.inner.RegisterRequestHandler("slow", func(ctx context.Context, params interface{}) (interface{}, error) {
		<-release
		return nil, nil
	})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	errCh := make(chan error, 1)
	go func() {
		_, err := env.outer.SendRequest(context.Background(), "slow", nil)
		errCh <- err
	}()

	require.Eventually(t, func() bool {
		return env.outer.PendingCount() == 1
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, env.outer.Stop(context.Background()))

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, pmerrors.IsCode(err, pmerrors.CodeTransportClosed))
	case <-time.After(time.Second):
		t.Fatal("pending request survived transport shutdown")
	}
}

func TestForeignSessionEnvelopesDropped(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	handled := make(chan struct{}, 1)
	env.outer.RegisterRequestHandler("probe", func(ctx context.Context, params interface{}) (interface{}, error) {
		handled <- struct{}{}
		return nil, nil
	})

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	// Same window, wrong session: a co-resident frame guessing at the
	// channel must not reach any handler.
	req, err := protocol.NewRequest("req-1", "probe", nil)
	require.NoError(t, err)
	env2, err := protocol.NewEnvelope("pm_session_forged", protocol.KindRPC, req)
	require.NoError(t, err)
	data, err := env2.Marshal()
	require.NoError(t, err)
	require.NoError(t, env.frameWin.PostMessage(data, testHostOrigin))

	select {
	case <-handled:
		t.Fatal("request with foreign session reached a handler")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, StateConnected, env.outer.State())
}

func TestDuplicateHandshakeInitIsIdempotent(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	// Replay the init for the live session at the inner side. A connected
	// transport must shrug it off.
	init := protocol.HandshakeInit{
		SessionID:  env.outer.SessionID(),
		MinVersion: "1.0",
		MaxVersion: "1.0",
	}
	envlp, err := protocol.NewEnvelope(env.outer.SessionID(), protocol.KindHandshakeInit, init)
	require.NoError(t, err)
	data, err := envlp.Marshal()
	require.NoError(t, err)
	require.NoError(t, env.hostWin.PostMessage(data, "https://srv.example"))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateConnected, env.inner.State())
	assert.Equal(t, StateConnected, env.outer.State())
}

func TestConfiguredSessionIDIsUsed(t *testing.T) {
	const pinned = "pm_session_caller_pinned_id"
	env := newPairEnv(t, OuterConfig{SessionID: pinned}, InnerConfig{})
	defer env.outer.Stop(context.Background())
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	assert.Equal(t, pinned, env.outer.SessionID())
	assert.Equal(t, pinned, env.inner.SessionID())
}

func TestStartStopsWhenContextCancelled(t *testing.T) {
	env := newPairEnv(t, OuterConfig{}, InnerConfig{})
	defer env.inner.Stop(context.Background())

	outerErr, innerErr := env.connect(t)
	require.NoError(t, outerErr)
	require.NoError(t, innerErr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.outer.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
	assert.Equal(t, StateClosed, env.outer.State())
}
