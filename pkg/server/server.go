// Package server provides the embedded-frame side of the MCP protocol: a
// tool registry served over a postMessage transport.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	pmerrors "github.com/adithya1012/mcp-postmessage/pkg/errors"
	"github.com/adithya1012/mcp-postmessage/pkg/logging"
	"github.com/adithya1012/mcp-postmessage/pkg/protocol"
	"github.com/adithya1012/mcp-postmessage/pkg/transport"
)

// ToolHandler executes one tool call. The input is the raw JSON the client
// supplied; the returned value is serialized into the call result.
type ToolHandler func(ctx context.Context, input json.RawMessage) (interface{}, error)

type toolEntry struct {
	tool    protocol.Tool
	handler ToolHandler
}

// Server serves MCP tool traffic over a postMessage transport.
type Server struct {
	transport transport.Transport
	name      string
	version   string
	logger    logging.Logger

	mu    sync.RWMutex
	tools map[string]toolEntry
}

// Option configures a server.
type Option func(*Server)

// WithServerInfo sets the name and version the server announces.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithLogger sets the server logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server over the given transport and registers its RPC
// handlers. Tools may be registered before or after Serve.
func New(t transport.Transport, opts ...Option) *Server {
	s := &Server{
		transport: t,
		name:      "mcp-postmessage-server",
		version:   "dev",
		logger:    logging.Nop(),
		tools:     make(map[string]toolEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Every request handler runs with a request ID and start/finish logs.
	mw := logging.NewContextMiddleware(s.logger)
	t.RegisterRequestHandler(protocol.MethodInitialize, mw.WrapHandler("initialize", s.handleInitialize))
	t.RegisterRequestHandler(protocol.MethodListTools, mw.WrapHandler("tools/list", s.handleListTools))
	t.RegisterRequestHandler(protocol.MethodCallTool, mw.WrapHandler("tools/call", s.handleCallTool))
	t.RegisterRequestHandler(protocol.MethodPing, mw.WrapHandler("ping", s.handlePing))
	return s
}

// RegisterTool adds a tool to the registry. Registering a name twice
// replaces the earlier entry.
func (s *Server) RegisterTool(tool protocol.Tool, handler ToolHandler) error {
	if tool.Name == "" {
		return pmerrors.NewError(pmerrors.CodeInvalidParams, "tool name is required",
			pmerrors.CategoryValidation, pmerrors.SeverityError)
	}
	if handler == nil {
		return pmerrors.NewError(pmerrors.CodeInvalidParams, "tool handler is required",
			pmerrors.CategoryValidation, pmerrors.SeverityError)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[tool.Name]; exists {
		s.logger.Warn("replacing registered tool", logging.String("tool", tool.Name))
	}
	s.tools[tool.Name] = toolEntry{tool: tool, handler: handler}
	return nil
}

// Serve establishes the transport session and blocks until the transport
// shuts down or the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.transport.Initialize(ctx); err != nil {
		return err
	}
	s.logger.Info("server connected",
		logging.String("session_id", s.transport.SessionID()),
		logging.String("protocol_version", s.transport.NegotiatedVersion()))
	return s.transport.Start(ctx)
}

// Connect establishes the transport session without blocking on traffic.
// Useful when the caller runs its own lifecycle loop.
func (s *Server) Connect(ctx context.Context) error {
	return s.transport.Initialize(ctx)
}

// Close shuts down the server and its transport.
func (s *Server) Close() error {
	return s.transport.Stop(context.Background())
}

func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	var init protocol.InitializeParams
	if err := decodeParams(params, &init); err != nil {
		return nil, pmerrors.WrapError(err, pmerrors.CodeInvalidParams,
			"invalid initialize params", pmerrors.CategoryValidation, pmerrors.SeverityError)
	}

	s.logger.Info("client initialized",
		logging.String("client_name", init.ClientName),
		logging.String("client_version", init.ClientVersion))

	return protocol.InitializeResult{
		ServerName:      s.name,
		ServerVersion:   s.version,
		ProtocolVersion: s.transport.NegotiatedVersion(),
	}, nil
}

func (s *Server) handleListTools(ctx context.Context, params interface{}) (interface{}, error) {
	s.mu.RLock()
	tools := make([]protocol.Tool, 0, len(s.tools))
	for _, entry := range s.tools {
		tools = append(tools, entry.tool)
	}
	s.mu.RUnlock()

	// Stable ordering keeps list output deterministic across calls.
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return protocol.ListToolsResult{Tools: tools}, nil
}

func (s *Server) handleCallTool(ctx context.Context, params interface{}) (interface{}, error) {
	var call protocol.CallToolParams
	if err := decodeParams(params, &call); err != nil {
		return nil, pmerrors.WrapError(err, pmerrors.CodeInvalidParams,
			"invalid tools/call params", pmerrors.CategoryValidation, pmerrors.SeverityError)
	}

	s.mu.RLock()
	entry, ok := s.tools[call.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, pmerrors.NewError(pmerrors.CodeMethodNotFound,
			fmt.Sprintf("unknown tool: %s", call.Name),
			pmerrors.CategoryValidation, pmerrors.SeverityWarning)
	}

	result, err := entry.handler(ctx, call.Input)
	if err != nil {
		// Tool failures are results, not protocol errors: the call itself
		// succeeded, the tool reported a problem.
		s.logger.Warn("tool call failed",
			logging.String("tool", call.Name), logging.ErrorField(err))
		return protocol.CallToolResult{Error: err.Error()}, nil
	}

	var resultJSON json.RawMessage
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return nil, pmerrors.WrapError(err, pmerrors.CodeInternalError,
				"tool result is not serializable", pmerrors.CategoryInternal, pmerrors.SeverityError)
		}
	}
	return protocol.CallToolResult{Result: resultJSON}, nil
}

func (s *Server) handlePing(ctx context.Context, params interface{}) (interface{}, error) {
	return protocol.PingResult{Timestamp: time.Now().UnixMilli()}, nil
}

func decodeParams(params interface{}, v interface{}) error {
	switch data := params.(type) {
	case nil:
		return fmt.Errorf("missing params")
	case json.RawMessage:
		if len(data) == 0 {
			return fmt.Errorf("missing params")
		}
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
