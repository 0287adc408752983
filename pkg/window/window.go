// Package window abstracts the messaging capability between two isolated
// execution contexts: a host page that owns an embedded frame (outer side)
// and the script running inside that frame (inner side). The transport never
// touches ambient global state; it is handed a Window capability and, on the
// outer side, a FrameControl that owns the frame's lifecycle.
package window

// MessageEvent is one delivered message together with the origin it
// arrived from. Origin is recorded by the delivering side and validated
// before any payload field is trusted.
type MessageEvent struct {
	Data   []byte
	Origin string
}

// MessageHandler consumes delivered message events.
type MessageHandler func(MessageEvent)

// Window is the capability to post messages to the other side and to
// subscribe to messages arriving from it. Implementations must deliver
// messages from a given sender in send order.
type Window interface {
	// PostMessage delivers data to the counterpart window. targetOrigin
	// restricts delivery to a counterpart with that origin; "*" disables
	// the restriction.
	PostMessage(data []byte, targetOrigin string) error

	// SetMessageHandler registers the handler invoked for each delivered
	// message. Passing nil detaches the current handler. At most one
	// handler is active at a time.
	SetMessageHandler(handler MessageHandler)

	// Origin returns the origin this window presents to its counterpart.
	Origin() string
}

// WildcardOrigin accepts messages from any origin. It is a demo
// convenience and unsafe for production; see ParentControlConfig.
const WildcardOrigin = "*"

// originAllowed reports whether origin matches the allow-list.
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == WildcardOrigin || a == origin {
			return true
		}
	}
	return false
}
