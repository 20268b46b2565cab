package mcpserver

import (
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/apresai/pitcharena/internal/engine"
	"github.com/apresai/pitcharena/internal/persona"
)

// Server is the MCP server exposing pitch practice as tools.
type Server struct {
	port     int
	mcp      *server.MCPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server.
func New(eng *engine.Engine, personas persona.Reader, port int, version string, logger *slog.Logger) *Server {
	handlers := NewHandlers(eng, personas, logger)

	mcpServer := server.NewMCPServer(
		"pitcharena",
		version,
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleListPersonas)
	mcpServer.AddTool(tools[1], handlers.HandleStartPitch)
	mcpServer.AddTool(tools[2], handlers.HandlePitchTurn)
	mcpServer.AddTool(tools[3], handlers.HandleGetPitch)
	mcpServer.AddTool(tools[4], handlers.HandlePitchStats)

	return &Server{
		port:     port,
		mcp:      mcpServer,
		handlers: handlers,
		log:      logger,
	}
}

// Start runs the HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("Starting MCP server", "addr", addr)

	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true), // sessions live in the store, not the transport
	)
	return httpServer.Start(addr)
}
