package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/ask-et/internal/assistant"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server    *mcp.Server
	assistant *assistant.Assistant
}

// Config holds server dependencies.
type Config struct {
	Assistant *assistant.Assistant
	Version   string
}

// NewServer creates a configured MCP server with tools registered.
// Handlers read the assistant's current corpus on every call, so snapshot
// reloads are picked up without re-registering anything.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}
	impl := &mcp.Implementation{
		Name:    "ask-et",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question about Emerging Technologies blog posts. Returns matching posts with excerpts, related projects and how the answer was found.",
	}, makeAskHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List blog posts, newest first, optionally filtered by author or tag.",
	}, makeListHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Retrieve one blog post by id, with its summary and full text.",
	}, makeGetHandler(cfg.Assistant))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Describe the snapshot being served: counts, categories, available topics and consistency between posts and indexed chunks.",
	}, makeStatusHandler(cfg.Assistant))

	return &Server{
		server:    server,
		assistant: cfg.Assistant,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
