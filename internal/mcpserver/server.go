package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all FairShare tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("fairshare", "1.0.0")
	h := NewHandlers(NewFairShareClient(cfg), cfg.DefaultSender)

	s.AddTool(ToolSendPoints, h.HandleSendPoints)
	s.AddTool(ToolGetThresholds, h.HandleGetThresholds)
	s.AddTool(ToolGetProfile, h.HandleGetProfile)
	s.AddTool(ToolTransactionSummary, h.HandleTransactionSummary)
	s.AddTool(ToolFundFlow, h.HandleFundFlow)
	s.AddTool(ToolCreatorLeaderboard, h.HandleCreatorLeaderboard)

	return s
}
