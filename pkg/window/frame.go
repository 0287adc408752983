package window

import (
	"context"
	"net/url"
	"sync"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
)

// SandboxMode names a frame sandbox policy. Development mode is deliberately
// permissive to ease local testing; production integrations must choose the
// strict mode explicitly.
type SandboxMode string

const (
	SandboxModeDevelopment SandboxMode = "development"
	SandboxModeProduction  SandboxMode = "production"
)

// Attributes returns the sandbox attribute set for the mode.
func (m SandboxMode) Attributes() []string {
	switch m {
	case SandboxModeProduction:
		return []string{"allow-scripts"}
	default:
		return []string{"allow-scripts", "allow-same-origin"}
	}
}

// Frame abstracts the embedded frame element the outer side owns.
type Frame interface {
	// SetSource starts navigating the frame to url. The returned channel
	// receives nil when the load completes or an error when it fails,
	// exactly once per navigation.
	SetSource(url string) <-chan error

	// ContentWindow returns the window handle for the frame's content.
	// The handle is valid before navigation so listeners can attach
	// ahead of the first load; posting through it requires navigation.
	ContentWindow() Window

	// SetSandbox applies a sandbox attribute set to the frame.
	SetSandbox(attrs []string)
}

// FrameControlConfig configures a FrameControl.
type FrameControlConfig struct {
	Frame Frame

	// SetVisible is invoked to show or hide the frame. The zero value is
	// an "always visible" no-op policy.
	SetVisible func(visible bool)

	// OnError is invoked on frame load failure or control-level fault.
	OnError func(err error)

	// SandboxMode selects the frame sandbox policy.
	SandboxMode SandboxMode

	Logger logging.Logger
}

// FrameControl owns a frame element: it navigates it, controls its
// visibility, and delivers outgoing data to its content window. The
// owning transport transitions to failed when OnError fires.
type FrameControl struct {
	frame      Frame
	setVisible func(bool)
	onError    func(error)
	logger     logging.Logger

	mu             sync.Mutex
	expectedOrigin string
	navigated      bool
}

// NewFrameControl creates a FrameControl from config.
func NewFrameControl(cfg FrameControlConfig) (*FrameControl, error) {
	if cfg.Frame == nil {
		return nil, pmerrors.NewError(
			pmerrors.CodeInvalidParams,
			"FrameControl requires a frame",
			pmerrors.CategoryValidation,
			pmerrors.SeverityError,
		)
	}

	setVisible := cfg.SetVisible
	if setVisible == nil {
		setVisible = func(bool) {}
	}
	onError := cfg.OnError
	if onError == nil {
		onError = func(error) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	cfg.Frame.SetSandbox(cfg.SandboxMode.Attributes())

	return &FrameControl{
		frame:      cfg.Frame,
		setVisible: setVisible,
		onError:    onError,
		logger:     logger.WithFields(logging.String("component", "FrameControl")),
	}, nil
}

// Navigate sets the frame's source and waits for the load event or the
// context deadline, whichever settles first. Navigation never hangs
// indefinitely: the caller must supply a bounded context.
func (fc *FrameControl) Navigate(ctx context.Context, rawURL string) error {
	fc.mu.Lock()
	fc.expectedOrigin = originFromURL(rawURL)
	fc.navigated = true
	fc.mu.Unlock()

	fc.logger.Debug("Navigating frame", logging.String("url", rawURL))
	loaded := fc.frame.SetSource(rawURL)

	select {
	case err := <-loaded:
		if err != nil {
			navErr := pmerrors.NavigationFailed(rawURL, err)
			fc.onError(navErr)
			return navErr
		}
		fc.logger.Debug("Frame load complete", logging.String("url", rawURL))
		return nil
	case <-ctx.Done():
		timeoutErr := pmerrors.NavigationTimeout(rawURL).WithDetail(ctx.Err().Error())
		fc.onError(timeoutErr)
		return timeoutErr
	}
}

// SetVisible shows or hides the frame via the configured policy hook.
func (fc *FrameControl) SetVisible(visible bool) {
	fc.setVisible(visible)
}

// ExpectedOrigin returns the origin derived from the navigated URL.
// Empty until Navigate has been called.
func (fc *FrameControl) ExpectedOrigin() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.expectedOrigin
}

// ContentWindow returns the frame's content window handle.
func (fc *FrameControl) ContentWindow() Window {
	return fc.frame.ContentWindow()
}

// Post delivers data to the frame's content window, restricted to the
// expected origin of the navigated URL.
func (fc *FrameControl) Post(data []byte) error {
	fc.mu.Lock()
	origin := fc.expectedOrigin
	navigated := fc.navigated
	fc.mu.Unlock()

	if !navigated {
		return pmerrors.InvalidState("post", "not navigated")
	}
	return fc.frame.ContentWindow().PostMessage(data, origin)
}

// ReportError routes a control-level fault to the configured handler.
func (fc *FrameControl) ReportError(err error) {
	fc.onError(err)
}

// originFromURL derives scheme://host from a URL, falling back to the
// wildcard when the URL cannot be parsed (in-memory frames in tests).
func originFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return WildcardOrigin
	}
	return u.Scheme + "://" + u.Host
}
