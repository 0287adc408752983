package postmessage

import (
	"github.com/adithya1012/mcp-postmessage/pkg/client"
	"github.com/adithya1012/mcp-postmessage/pkg/server"
	"github.com/adithya1012/mcp-postmessage/pkg/transport"
)

// Version is the current version of the library.
const Version = "1.0.0"

// These exports provide direct access to the core components.
var (
	// NewClient creates a new MCP client over a transport.
	NewClient = client.New

	// NewServer creates a new MCP server over a transport.
	NewServer = server.New

	// NewOuterTransport creates the transport for the page that owns the
	// embedded frame.
	NewOuterTransport = transport.NewOuterTransport

	// NewInnerTransport creates the transport for the script inside the
	// embedded frame.
	NewInnerTransport = transport.NewInnerTransport

	// GenerateSessionID returns a fresh unguessable session identifier.
	GenerateSessionID = transport.GenerateSessionID
)
