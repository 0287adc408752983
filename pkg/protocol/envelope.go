package protocol

import (
	"encoding/json"
	"fmt"
)

// EnvelopeKind discriminates the variants of message an envelope can carry.
type EnvelopeKind string

const (
	// KindHandshakeInit opens a session: sent by the outer side with its
	// generated session ID and declared version range.
	KindHandshakeInit EnvelopeKind = "handshake-init"

	// KindHandshakeAck is the inner side's reply carrying its own version range.
	KindHandshakeAck EnvelopeKind = "handshake-ack"

	// KindHandshakeComplete is the outer side's final acknowledgement carrying
	// the negotiated version (or a negotiation failure).
	KindHandshakeComplete EnvelopeKind = "handshake-complete"

	// KindRPC carries an opaque JSON-RPC message for the layer above.
	KindRPC EnvelopeKind = "rpc"

	// KindClose signals orderly teardown of the session.
	KindClose EnvelopeKind = "close"
)

// knownKinds is the closed set of envelope variants accepted at the boundary.
var knownKinds = map[EnvelopeKind]bool{
	KindHandshakeInit:     true,
	KindHandshakeAck:      true,
	KindHandshakeComplete: true,
	KindRPC:               true,
	KindClose:             true,
}

// Envelope is the unit carried by one postMessage delivery. Envelopes are
// immutable once constructed; the transport matches them against pending
// state but never mutates them.
type Envelope struct {
	SessionID string          `json:"sessionId"`
	Kind      EnvelopeKind    `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// SourceOrigin is recorded from the delivering message event. It is set
	// by the receiver and never serialized; origin policy is enforced before
	// any other field is trusted.
	SourceOrigin string `json:"-"`
}

// NewEnvelope constructs an envelope with a marshaled payload.
func NewEnvelope(sessionID string, kind EnvelopeKind, payload interface{}) (*Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal envelope payload: %w", err)
		}
	}
	return &Envelope{SessionID: sessionID, Kind: kind, Payload: raw}, nil
}

// ParseEnvelope validates and decodes a raw message into an Envelope.
// It rejects messages that are not JSON objects, carry an unknown kind,
// or lack a session ID, without ever panicking on malformed input.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("envelope is not valid JSON: %w", err)
	}
	if env.Kind == "" {
		return nil, fmt.Errorf("envelope is missing kind")
	}
	if !knownKinds[env.Kind] {
		return nil, fmt.Errorf("unknown envelope kind %q", env.Kind)
	}
	if env.SessionID == "" {
		return nil, fmt.Errorf("envelope is missing sessionId")
	}
	return &env, nil
}

// Marshal serializes the envelope for posting.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// IsHandshake reports whether the envelope belongs to the handshake exchange.
func (e *Envelope) IsHandshake() bool {
	switch e.Kind {
	case KindHandshakeInit, KindHandshakeAck, KindHandshakeComplete:
		return true
	}
	return false
}

// HandshakeInit is the payload of a handshake-init envelope.
type HandshakeInit struct {
	SessionID  string `json:"sessionId"`
	MinVersion string `json:"minVersion"`
	MaxVersion string `json:"maxVersion"`
}

// HandshakeAck is the payload of a handshake-ack envelope.
type HandshakeAck struct {
	SessionID  string `json:"sessionId"`
	MinVersion string `json:"minVersion"`
	MaxVersion string `json:"maxVersion"`
}

// HandshakeComplete is the payload of a handshake-complete envelope. When
// negotiation fails, NegotiatedVersion is empty and Error describes the
// incompatibility.
type HandshakeComplete struct {
	SessionID         string `json:"sessionId"`
	NegotiatedVersion string `json:"negotiatedVersion,omitempty"`
	Error             string `json:"error,omitempty"`
}

// ReadyMessageType tags the application-level bootstrap signal the inner
// page posts on load so a host UI can reveal the frame early. It is not part
// of the handshake and must never be treated as connection-state truth.
const ReadyMessageType = "copilot-ready"

// ReadyMessage is the bootstrap signal payload.
type ReadyMessage struct {
	Type string `json:"type"`
}

// IsReadyMessage reports whether raw data is the bootstrap ready signal.
func IsReadyMessage(data []byte) bool {
	var msg ReadyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}
	return msg.Type == ReadyMessageType
}
