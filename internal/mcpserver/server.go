package mcpserver

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps an MCP stdio server whose tools proxy the AgentShield API.
type Server struct {
	mcp    *server.MCPServer
	client *Client
	logger *slog.Logger
}

// New creates the MCP server and registers its tools.
func New(client *Client, logger *slog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			"agentshield",
			"0.1.0",
			server.WithToolCapabilities(false),
		),
		client: client,
		logger: logger,
	}
	s.registerTools()
	return s
}

// ServeStdio runs the server over stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("get_shield_status",
		mcp.WithDescription("Get the protection record for an agent wallet: circuit breaker state, anomaly count, counters, and policy."),
		mcp.WithString("wallet", mcp.Required(), mcp.Description("Agent wallet address (0x-prefixed hex)")),
	), s.handleGetStatus)

	s.mcp.AddTool(mcp.NewTool("check_transaction",
		mcp.WithDescription("Screen a proposed transaction against the agent's policy and circuit breaker. Returns allowed, flagged, or blocked. Flagged transactions count toward the breaker threshold."),
		mcp.WithString("wallet", mcp.Required(), mcp.Description("Agent wallet address")),
		mcp.WithString("signature", mcp.Required(), mcp.Description("Transaction signature, hex")),
		mcp.WithString("program_id", mcp.Required(), mcp.Description("Target program or contract address")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("Transaction value in base units")),
		mcp.WithNumber("tx_type", mcp.Description("Application-defined transaction category code")),
	), s.handleCheckTransaction)

	s.mcp.AddTool(mcp.NewTool("trigger_circuit_breaker",
		mcp.WithDescription("Manually open the circuit breaker for an agent wallet, blocking transactions until the cooldown elapses or a reset."),
		mcp.WithString("wallet", mcp.Required(), mcp.Description("Agent wallet address")),
		mcp.WithString("reason", mcp.Description("Why the breaker is being opened; recorded in the alert trail")),
	), s.handleTrigger)

	s.mcp.AddTool(mcp.NewTool("reset_circuit_breaker",
		mcp.WithDescription("Close the circuit breaker and clear the anomaly count for an agent wallet."),
		mcp.WithString("wallet", mcp.Required(), mcp.Description("Agent wallet address")),
	), s.handleReset)

	s.mcp.AddTool(mcp.NewTool("list_alerts",
		mcp.WithDescription("List recent protection alerts (anomalies, blocks, breaker trips) for an agent wallet, newest first."),
		mcp.WithString("wallet", mcp.Required(), mcp.Description("Agent wallet address")),
		mcp.WithNumber("limit", mcp.Description("Maximum alerts to return (default 20)")),
	), s.handleListAlerts)
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet, err := req.RequireString("wallet")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.client.GetShield(ctx, wallet)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleCheckTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet, err := req.RequireString("wallet")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	signature, err := req.RequireString("signature")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	programID, err := req.RequireString("program_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if value < 0 {
		return mcp.NewToolResultError("value must not be negative"), nil
	}
	txType := req.GetFloat("tx_type", 0)

	out, err := s.client.RecordTransaction(ctx, wallet, signature, programID, uint64(value), uint8(txType))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleTrigger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet, err := req.RequireString("wallet")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.client.Trigger(ctx, wallet, req.GetString("reason", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet, err := req.RequireString("wallet")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.client.Reset(ctx, wallet)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet, err := req.RequireString("wallet")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := int(req.GetFloat("limit", 20))

	out, err := s.client.ListAlerts(ctx, wallet, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
