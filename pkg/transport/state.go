package transport

import "sync"

// State describes where a transport is in its lifecycle.
type State int32

const (
	// StateIdle is the initial state before Initialize is called.
	StateIdle State = iota

	// StatePreparing covers frame navigation and listener attachment.
	StatePreparing

	// StateHandshaking covers the init/ack/complete exchange.
	StateHandshaking

	// StateConnected means RPC traffic may flow.
	StateConnected

	// StateClosing means shutdown has started.
	StateClosing

	// StateClosed is the terminal state after an orderly shutdown.
	StateClosed

	// StateFailed is the terminal state after an unrecoverable error.
	// Recovery is the caller's job: discard the transport and build a
	// fresh one.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StatePreparing:   "preparing",
	StateHandshaking: "handshaking",
	StateConnected:   "connected",
	StateClosing:     "closing",
	StateClosed:      "closed",
	StateFailed:      "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// stateMachine serializes lifecycle transitions and notifies an observer on
// every change.
type stateMachine struct {
	mu       sync.Mutex
	state    State
	onChange func(State)
}

func newStateMachine(onChange func(State)) *stateMachine {
	return &stateMachine{state: StateIdle, onChange: onChange}
}

func (sm *stateMachine) current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// set moves unconditionally to the given state unless already terminal.
func (sm *stateMachine) set(to State) {
	sm.mu.Lock()
	if sm.state.Terminal() {
		sm.mu.Unlock()
		return
	}
	sm.state = to
	notify := sm.onChange
	sm.mu.Unlock()
	if notify != nil {
		notify(to)
	}
}

// setIf moves to the given state only when the current state is one of from.
// It reports whether the transition happened.
func (sm *stateMachine) setIf(to State, from ...State) bool {
	sm.mu.Lock()
	matched := false
	for _, f := range from {
		if sm.state == f {
			matched = true
			break
		}
	}
	if !matched {
		sm.mu.Unlock()
		return false
	}
	sm.state = to
	notify := sm.onChange
	sm.mu.Unlock()
	if notify != nil {
		notify(to)
	}
	return true
}
