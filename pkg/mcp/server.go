package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/mcp/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "whereabouts"

// Server wraps the mcp-go MCPServer with the whereabouts tool set.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance. Panics inside tool handlers
// are recovered and returned to the client as errors.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTools registers the health tool and every locality tool.
func (s *Server) RegisterTools(version, store string, deps *tools.ToolDeps) {
	if deps.Logger == nil {
		deps.Logger = s.logger
	}
	tools.RegisterHealthTool(s.mcp, version, store)
	tools.RegisterTools(s.mcp, deps)
	s.logger.Info("Registered MCP tools", zap.String("store", store))
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
// The HTTP mux handles routing to /mcp, so no endpoint path is configured here.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// RegisterTool is a convenience wrapper for registering a single tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}
