// Package transport implements MCP message transports over browser-style
// postMessage channels. An OuterTransport runs in the page that owns an
// embedded frame; an InnerTransport runs in the script loaded inside that
// frame. The two sides establish a session through a three-step handshake,
// negotiate a protocol version, and then exchange JSON-RPC traffic wrapped
// in session-tagged envelopes.
package transport
