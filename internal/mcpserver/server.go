package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Meterline tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("meterline", "1.0.0")
	client := NewMeterlineClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetBalance, h.HandleGetBalance)
	s.AddTool(ToolGetLedger, h.HandleGetLedger)
	s.AddTool(ToolCalculateCost, h.HandleCalculateCost)
	s.AddTool(ToolGetPricing, h.HandleGetPricing)
	s.AddTool(ToolCheckAction, h.HandleCheckAction)

	return s
}
