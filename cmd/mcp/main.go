// Meterline MCP Server - Exposes billing capabilities as MCP tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/meterline/meterline/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:   envOrDefault("METERLINE_API_URL", "http://localhost:8080"),
		APIKey:   os.Getenv("METERLINE_API_KEY"),
		TenantID: os.Getenv("METERLINE_TENANT_ID"),
	}

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "METERLINE_API_KEY is required")
		os.Exit(1)
	}
	if cfg.TenantID == "" {
		fmt.Fprintln(os.Stderr, "METERLINE_TENANT_ID is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
