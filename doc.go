// Package postmessage implements the Model Context Protocol over
// browser-style postMessage channels: a host page embeds an MCP server in a
// frame and talks to it through session-tagged envelopes rather than a
// network connection.
//
// # Overview
//
// The library consists of several sub-packages:
//
//   - pkg/protocol: envelope framing, version negotiation, and JSON-RPC types
//   - pkg/transport: the outer (frame-owning) and inner (embedded) transports
//   - pkg/window: window and frame capabilities, including in-memory pairs
//   - pkg/client: the host-page client API
//   - pkg/server: the embedded-frame tool server
//   - pkg/errors: the structured error taxonomy
//   - pkg/logging: structured field-based logging
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//
// # Connecting to an embedded server
//
//	ctrl, _ := window.NewFrameControl(window.FrameControlConfig{Frame: frame})
//	outer, _ := transport.NewOuterTransport(ctrl, transport.OuterConfig{
//	    ServerURL: "https://tools.example/mcp",
//	})
//	c := client.New(outer, client.WithClientInfo("host-page", "1.0"))
//	if err := c.Connect(ctx); err != nil {
//	    // the frame failed to load, the handshake timed out, or the
//	    // declared protocol version ranges do not overlap
//	}
//	tools, _ := c.ListTools(ctx)
//
// # Serving tools from inside the frame
//
//	pc, _ := window.NewParentControl(window.ParentControlConfig{
//	    Parent:         parentWindow,
//	    AllowedOrigins: []string{"https://host.example"},
//	})
//	inner, _ := transport.NewInnerTransport(pc, transport.InnerConfig{})
//	srv := server.New(inner, server.WithServerInfo("weather-server", "2.0"))
//	srv.RegisterTool(tool, handler)
//	srv.Serve(ctx)
//
// Transports are single-use: once one reaches a terminal state, recovery
// means building a fresh transport and connecting again.
package postmessage
