package transport

import (
	"time"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/observability"
)

const (
	// DefaultProtocolVersion is used when a config leaves the version
	// range empty.
	DefaultProtocolVersion = "1.0"

	// DefaultNavigationTimeout bounds frame loading.
	DefaultNavigationTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds the wait for a handshake reply.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultSettleDelay is the pause between navigation completing and
	// the first handshake attempt, giving the inner script time to attach
	// its listener.
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultRequestTimeout bounds a request/response round trip when the
	// caller's context carries no deadline.
	DefaultRequestTimeout = 30 * time.Second
)

// OuterConfig configures the transport on the page that owns the frame.
type OuterConfig struct {
	// ServerURL is the address loaded into the frame.
	ServerURL string

	// SessionID, when set, pins the session identifier instead of
	// generating a fresh one. Resuming an earlier session works by
	// passing its ID here.
	SessionID string

	// MinVersion and MaxVersion declare the supported protocol range.
	MinVersion string
	MaxVersion string

	NavigationTimeout time.Duration
	HandshakeTimeout  time.Duration
	SettleDelay       time.Duration
	RequestTimeout    time.Duration

	Logger  logging.Logger
	Metrics observability.MetricsProvider
}

// Validate checks the config and fills in defaults.
func (c *OuterConfig) Validate() error {
	if c.ServerURL == "" {
		return pmerrors.NewError(pmerrors.CodeInvalidParams, "server URL is required",
			pmerrors.CategoryValidation, pmerrors.SeverityError)
	}
	if c.MinVersion == "" {
		c.MinVersion = DefaultProtocolVersion
	}
	if c.MaxVersion == "" {
		c.MaxVersion = DefaultProtocolVersion
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	// Zero means "use the default"; a negative value disables the delay
	// entirely, which only makes sense when the server signals readiness.
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	} else if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NopMetrics{}
	}
	return nil
}

// InnerConfig configures the transport inside the embedded frame.
type InnerConfig struct {
	// MinVersion and MaxVersion declare the supported protocol range.
	MinVersion string
	MaxVersion string

	// RequiresVisibleSetup asks the outer side to keep the frame visible
	// while the server prepares, for flows that need user interaction.
	RequiresVisibleSetup bool

	// HandshakeTimeout bounds the wait for the outer side to complete the
	// handshake after Initialize.
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration

	Logger  logging.Logger
	Metrics observability.MetricsProvider
}

// Validate checks the config and fills in defaults.
func (c *InnerConfig) Validate() error {
	if c.MinVersion == "" {
		c.MinVersion = DefaultProtocolVersion
	}
	if c.MaxVersion == "" {
		c.MaxVersion = DefaultProtocolVersion
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NopMetrics{}
	}
	return nil
}
