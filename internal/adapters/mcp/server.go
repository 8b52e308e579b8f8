// Package mcpadapter exposes the document searcher as an MCP stdio server
// so agent runtimes can call it as a tool.
package mcpadapter

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ymatsuda/docsearch/internal/core/domain"
	"github.com/ymatsuda/docsearch/internal/core/ports"
)

const (
	serverName    = "docsearch-mcp"
	serverVersion = "1.0.0"
)

// Server wraps the MCP server with the search use case and its defaults.
type Server struct {
	mcp      *server.MCPServer
	searcher ports.DocumentSearcher
	defaults domain.FusionConfig
	logger   *slog.Logger
}

func NewServer(searcher ports.DocumentSearcher, defaults domain.FusionConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:      server.NewMCPServer(serverName, serverVersion),
		searcher: searcher,
		defaults: defaults,
		logger:   logger,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
}

// Serve runs the server on stdio and blocks until the transport closes.
// stdout is reserved for the MCP protocol; all logging goes to stderr.
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}
