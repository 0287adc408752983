// Package client provides the host-page side of the MCP protocol: it drives
// a transport's connection lifecycle and exposes typed tool operations.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
	"github.com/adithya1012/mcp-postmessage/pkg/transport"
)

// Client is the interface for an MCP client over a postMessage transport.
type Client interface {
	// Connect establishes the transport session and exchanges the
	// initialize handshake with the server.
	Connect(ctx context.Context) error

	// ListTools lists the tools the server exposes.
	ListTools(ctx context.Context) ([]protocol.Tool, error)

	// CallTool invokes a tool by name with the given input.
	CallTool(ctx context.Context, name string, input interface{}) (*protocol.CallToolResult, error)

	// Ping checks that the server is responding.
	Ping(ctx context.Context) error

	// ServerInfo returns the server identity learned during Connect, or
	// nil before Connect succeeds.
	ServerInfo() *protocol.InitializeResult

	// Close shuts down the client and its transport.
	Close() error
}

// Option configures a client.
type Option func(*clientImpl)

// WithClientInfo sets the name and version the client announces.
func WithClientInfo(name, version string) Option {
	return func(c *clientImpl) {
		c.name = name
		c.version = version
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *clientImpl) {
		c.logger = logger
	}
}

type clientImpl struct {
	transport transport.Transport
	name      string
	version   string
	logger    logging.Logger

	mu         sync.RWMutex
	serverInfo *protocol.InitializeResult
}

// New creates a client over the given transport.
func New(t transport.Transport, opts ...Option) Client {
	c := &clientImpl{
		transport: t,
		name:      "mcp-postmessage-client",
		version:   "dev",
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *clientImpl) Connect(ctx context.Context) error {
	if err := c.transport.Initialize(ctx); err != nil {
		return err
	}

	params := protocol.InitializeParams{
		ClientName:    c.name,
		ClientVersion: c.version,
	}
	result, err := c.transport.SendRequest(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return fmt.Errorf("initialize request failed: %w", err)
	}

	var info protocol.InitializeResult
	if err := decodeResult(result, &info); err != nil {
		return pmerrors.WrapError(err, pmerrors.CodeParseError,
			"invalid initialize result", pmerrors.CategoryProtocol, pmerrors.SeverityError)
	}

	c.mu.Lock()
	c.serverInfo = &info
	c.mu.Unlock()

	c.logger.Info("connected to server",
		logging.String("server_name", info.ServerName),
		logging.String("server_version", info.ServerVersion),
		logging.String("protocol_version", info.ProtocolVersion))
	return nil
}

func (c *clientImpl) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	result, err := c.transport.SendRequest(ctx, protocol.MethodListTools, protocol.ListToolsParams{})
	if err != nil {
		return nil, err
	}
	var listed protocol.ListToolsResult
	if err := decodeResult(result, &listed); err != nil {
		return nil, pmerrors.WrapError(err, pmerrors.CodeParseError,
			"invalid tools/list result", pmerrors.CategoryProtocol, pmerrors.SeverityError)
	}
	return listed.Tools, nil
}

func (c *clientImpl) CallTool(ctx context.Context, name string, input interface{}) (*protocol.CallToolResult, error) {
	var inputJSON json.RawMessage
	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, pmerrors.WrapError(err, pmerrors.CodeInvalidParams,
				"tool input is not serializable", pmerrors.CategoryValidation, pmerrors.SeverityError)
		}
		inputJSON = data
	}

	params := protocol.CallToolParams{Name: name, Input: inputJSON}
	result, err := c.transport.SendRequest(ctx, protocol.MethodCallTool, params)
	if err != nil {
		return nil, err
	}

	var callResult protocol.CallToolResult
	if err := decodeResult(result, &callResult); err != nil {
		return nil, pmerrors.WrapError(err, pmerrors.CodeParseError,
			"invalid tools/call result", pmerrors.CategoryProtocol, pmerrors.SeverityError)
	}
	return &callResult, nil
}

func (c *clientImpl) Ping(ctx context.Context) error {
	result, err := c.transport.SendRequest(ctx, protocol.MethodPing, nil)
	if err != nil {
		return err
	}
	var pong protocol.PingResult
	if err := decodeResult(result, &pong); err != nil {
		return pmerrors.WrapError(err, pmerrors.CodeParseError,
			"invalid ping result", pmerrors.CategoryProtocol, pmerrors.SeverityError)
	}
	return nil
}

func (c *clientImpl) ServerInfo() *protocol.InitializeResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

func (c *clientImpl) Close() error {
	return c.transport.Stop(context.Background())
}

// decodeResult converts a transport-level result value into a typed result.
func decodeResult(result interface{}, v interface{}) error {
	switch data := result.(type) {
	case nil:
		return fmt.Errorf("empty result")
	case json.RawMessage:
		return json.Unmarshal(data, v)
	case []byte:
		return json.Unmarshal(data, v)
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, v)
	}
}
