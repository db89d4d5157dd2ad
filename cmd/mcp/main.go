// Command mcp runs the AgentShield MCP server over stdio. It proxies tool
// calls to a running API instance.
//
// Environment:
//
//	AGENTSHIELD_API_URL  base URL of the API (default http://localhost:8080)
//	AGENTSHIELD_API_KEY  API key for authenticated endpoints (required)
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/mbd888/agentshield/internal/logging"
	"github.com/mbd888/agentshield/internal/mcpserver"
)

func main() {
	_ = godotenv.Load()

	// Logs go to stderr; stdout carries the MCP protocol.
	logger := logging.NewWithWriter(os.Stderr, os.Getenv("LOG_LEVEL"), "text")

	baseURL := os.Getenv("AGENTSHIELD_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	apiKey := os.Getenv("AGENTSHIELD_API_KEY")
	if apiKey == "" {
		logger.Error("AGENTSHIELD_API_KEY must be set")
		os.Exit(1)
	}

	srv := mcpserver.New(mcpserver.NewClient(baseURL, apiKey), logger)
	if err := srv.ServeStdio(); err != nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
