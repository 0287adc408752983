package window

import (
	"sync"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
)

// ParentControlConfig configures a ParentControl.
type ParentControlConfig struct {
	Parent Window

	// AllowedOrigins is the list of trusted origins for inbound messages.
	AllowedOrigins []string

	// AllowWildcardOrigin permits "*" in AllowedOrigins. Accepting any
	// origin is unsafe outside local development and must be opted into
	// deliberately.
	AllowWildcardOrigin bool

	Logger logging.Logger
}

// ParentControl is the inner side's window capability: it knows how to reach
// the parent window and validates incoming message origins against an
// allow-list before feeding them to the owning transport.
type ParentControl struct {
	parent         Window
	allowedOrigins []string
	logger         logging.Logger

	mu         sync.Mutex
	subscribed bool
}

// NewParentControl creates a ParentControl from config. Configurations that
// include the wildcard origin without AllowWildcardOrigin are rejected.
func NewParentControl(cfg ParentControlConfig) (*ParentControl, error) {
	if cfg.Parent == nil {
		return nil, pmerrors.NewError(
			pmerrors.CodeInvalidParams,
			"ParentControl requires a parent window",
			pmerrors.CategoryValidation,
			pmerrors.SeverityError,
		)
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, pmerrors.NewError(
			pmerrors.CodeInvalidParams,
			"ParentControl requires at least one allowed origin",
			pmerrors.CategoryValidation,
			pmerrors.SeverityError,
		)
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == WildcardOrigin && !cfg.AllowWildcardOrigin {
			return nil, pmerrors.NewError(
				pmerrors.CodeInvalidParams,
				"Wildcard origin requires AllowWildcardOrigin",
				pmerrors.CategorySecurity,
				pmerrors.SeverityError,
			)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	return &ParentControl{
		parent:         cfg.Parent,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger.WithFields(logging.String("component", "ParentControl")),
	}, nil
}

// PostToParent delivers data to the parent window. Delivery is restricted to
// the first configured origin unless the wildcard is allowed.
func (pc *ParentControl) PostToParent(data []byte) error {
	return pc.parent.PostMessage(data, pc.targetOrigin())
}

// Subscribe registers handler to receive origin-validated messages.
// Messages from untrusted origins are dropped and logged, never forwarded.
// Passing nil detaches the subscription.
func (pc *ParentControl) Subscribe(handler MessageHandler) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if handler == nil {
		pc.parent.SetMessageHandler(nil)
		pc.subscribed = false
		return
	}

	pc.parent.SetMessageHandler(func(ev MessageEvent) {
		if !originAllowed(ev.Origin, pc.allowedOrigins) {
			pc.logger.Warn("Dropping message from untrusted origin",
				logging.String("origin", ev.Origin))
			return
		}
		handler(ev)
	})
	pc.subscribed = true
}

// targetOrigin picks the outbound origin restriction.
func (pc *ParentControl) targetOrigin() string {
	for _, origin := range pc.allowedOrigins {
		if origin != WildcardOrigin {
			return origin
		}
	}
	return WildcardOrigin
}
