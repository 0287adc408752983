// Package pkg holds the core components of the postMessage MCP library.
//
// The sub-packages split along the transport's layers:
//
//   - protocol: envelope framing, version negotiation, JSON-RPC types
//   - window: window and frame capabilities the transports are built on
//   - transport: the outer and inner postMessage transports
//   - client, server: the RPC layers on top of a transport
//   - errors, logging, observability: the cross-cutting concerns
//
// See the root package for convenience exports and a usage overview.
package pkg
