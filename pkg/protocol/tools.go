package protocol

import (
	"encoding/json"
)

// Tool describes one invocable tool exposed by the server side.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsParams defines parameters for listing tools.
type ListToolsParams struct{}

// ListToolsResult defines the response for listing tools.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams defines parameters for calling a tool.
type CallToolParams struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// CallToolResult defines the response for tool calls.
type CallToolResult struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Method names exchanged by the RPC layer above the transport.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
	MethodPing       = "ping"
)

// InitializeParams is sent by the client as the first RPC request.
type InitializeParams struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

// InitializeResult is the server's answer to initialize.
type InitializeResult struct {
	ServerName      string `json:"serverName"`
	ServerVersion   string `json:"serverVersion"`
	ProtocolVersion string `json:"protocolVersion"`
}

// PingResult is the server's answer to ping.
type PingResult struct {
	Timestamp int64 `json:"timestamp"`
}
