// Package mcp exposes the assistant's tool registry as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/zuychin03/zuychin-assistant/pkg/tool"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const serverName = "zuychin-assistant"

// Server serves registry tools to MCP clients. Every call is attributed to the owner.
type Server struct {
	registry *tool.Registry
	ownerID  string
	server   *mcp.Server
}

// Option configures Server
type Option func(*Server)

// NewServer creates a Server and registers every tool of registry
func NewServer(registry *tool.Registry, ownerID, version string, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		ownerID:  ownerID,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version,
		}, nil),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, t := range registry.Tools() {
		spec := t.Spec()
		s.server.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.InputSchema(),
		}, s.handler(spec.Name))
	}

	return s
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(goerr.Wrap(err, "arguments must be a JSON object")), nil
			}
		}

		ctx = tool.WithOwner(ctx, s.ownerID)
		ctx = logging.With(ctx, logging.From(ctx).With("transport", "mcp"))

		result, err := s.registry.Run(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

// errorResult reports a tool failure to the client instead of failing the request
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// RunStdio serves a single client over stdin and stdout until it disconnects or ctx ends
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp stdio server stopped")
	}
	return nil
}

// Connect serves one session on transport. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, transport, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}

// Handler serves the streamable HTTP transport
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}
