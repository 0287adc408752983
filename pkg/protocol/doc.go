// Package protocol defines the wire format exchanged between the outer
// (frame-owning) and inner (embedded) sides of a postMessage transport:
// the envelope carried by each message, the handshake payloads used to
// establish a session, the JSON-RPC 2.0 messages that ride inside rpc
// envelopes, and the protocol version negotiation rules.
package protocol
