package window

import (
	"sync"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
)

// ChannelWindow is an in-memory Window implementation backed by a channel,
// used by tests and demos to stand in for a real browser window pair.
// Messages are delivered on a dedicated goroutine in send order.
type ChannelWindow struct {
	origin string

	mu      sync.Mutex
	peer    *ChannelWindow
	handler MessageHandler
	inbox   chan MessageEvent
	done    chan struct{}
	closed  bool
}

// NewWindowPair creates two connected in-memory windows. Posting to one
// delivers to the other's handler, tagged with the poster's origin.
func NewWindowPair(originA, originB string) (*ChannelWindow, *ChannelWindow) {
	a := newChannelWindow(originA)
	b := newChannelWindow(originB)
	a.peer = b
	b.peer = a
	return a, b
}

func newChannelWindow(origin string) *ChannelWindow {
	w := &ChannelWindow{
		origin: origin,
		inbox:  make(chan MessageEvent, 64),
		done:   make(chan struct{}),
	}
	go w.dispatchLoop()
	return w
}

// dispatchLoop preserves per-sender delivery order: a single goroutine
// drains the inbox into whatever handler is currently attached.
func (w *ChannelWindow) dispatchLoop() {
	for {
		select {
		case ev := <-w.inbox:
			w.mu.Lock()
			handler := w.handler
			w.mu.Unlock()
			if handler != nil {
				handler(ev)
			}
		case <-w.done:
			return
		}
	}
}

// PostMessage delivers data to the peer window, honoring targetOrigin.
func (w *ChannelWindow) PostMessage(data []byte, targetOrigin string) error {
	w.mu.Lock()
	peer := w.peer
	closed := w.closed
	w.mu.Unlock()

	if closed || peer == nil {
		return pmerrors.TransportClosed("postMessage")
	}
	if targetOrigin != WildcardOrigin && targetOrigin != peer.origin {
		// Browser semantics: the message is silently not delivered when the
		// target origin does not match; surface it here for diagnosability.
		return pmerrors.OriginRejected(targetOrigin)
	}

	// Copy so the sender cannot mutate the delivered bytes.
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case peer.inbox <- MessageEvent{Data: buf, Origin: w.origin}:
		return nil
	case <-peer.done:
		return pmerrors.TransportClosed("postMessage")
	}
}

// SetMessageHandler registers the delivery handler; nil detaches it.
func (w *ChannelWindow) SetMessageHandler(handler MessageHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// Origin returns the origin this window presents to its counterpart.
func (w *ChannelWindow) Origin() string {
	return w.origin
}

// Close stops delivery. Posting to or from a closed window fails.
func (w *ChannelWindow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
}

// MemoryFrame is an in-memory Frame implementation for tests and demos.
// Navigation completes asynchronously with a configurable result.
type MemoryFrame struct {
	mu            sync.Mutex
	contentWindow Window
	sandbox       []string
	loadErr       error
	loadHook      func(url string)
	blockLoad     bool
}

// NewMemoryFrame creates a frame whose content window is the given window.
func NewMemoryFrame(content Window) *MemoryFrame {
	return &MemoryFrame{contentWindow: content}
}

// FailLoadsWith makes subsequent navigations fail with err.
func (f *MemoryFrame) FailLoadsWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
}

// BlockLoads makes subsequent navigations never settle, for timeout tests.
func (f *MemoryFrame) BlockLoads() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockLoad = true
}

// OnLoad registers a hook invoked with the URL when a navigation settles.
func (f *MemoryFrame) OnLoad(hook func(url string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadHook = hook
}

// SetSource starts a simulated navigation.
func (f *MemoryFrame) SetSource(url string) <-chan error {
	f.mu.Lock()
	loadErr := f.loadErr
	hook := f.loadHook
	block := f.blockLoad
	f.mu.Unlock()

	ch := make(chan error, 1)
	if block {
		return ch
	}
	go func() {
		if hook != nil {
			hook(url)
		}
		ch <- loadErr
	}()
	return ch
}

// ContentWindow returns the frame's content window.
func (f *MemoryFrame) ContentWindow() Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contentWindow
}

// SetSandbox records the applied sandbox attribute set.
func (f *MemoryFrame) SetSandbox(attrs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sandbox = attrs
}

// Sandbox returns the last applied sandbox attribute set.
func (f *MemoryFrame) Sandbox() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sandbox
}
