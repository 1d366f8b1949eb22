// Package gateway provides a stdio MCP server that proxies tool calls to a
// running toolgate daemon over the line protocol.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/toolgate/toolgate/internal/client"
)

// Daemon is the slice of the line-protocol client the gateway forwards
// through. *client.LineClient satisfies it.
type Daemon interface {
	Tools(ctx context.Context) ([]client.ToolInfo, error)
	CallTool(ctx context.Context, tool string, params json.RawMessage) (json.RawMessage, error)
}

// NewServer builds an MCP server exposing every tool the daemon reports.
// The line protocol carries only tool names and descriptions, so each tool
// is registered with an open object schema and arguments are forwarded
// untouched.
func NewServer(ctx context.Context, daemon Daemon) (*server.MCPServer, error) {
	tools, err := daemon.Tools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list daemon tools: %w", err)
	}

	s := server.NewMCPServer(
		"toolgate-gateway",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	for _, tool := range tools {
		t := mcp.NewTool(tool.Name,
			mcp.WithDescription(tool.Description),
		)
		s.AddTool(t, forwardHandler(daemon, tool.Name))
	}

	return s, nil
}

// forwardHandler returns a handler that relays the call to the daemon and
// renders the reply the way the daemon's own MCP endpoint would.
func forwardHandler(daemon Daemon, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var params json.RawMessage
		if args := request.GetArguments(); len(args) > 0 {
			encoded, err := json.Marshal(args)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
			params = encoded
		}

		raw, err := daemon.CallTool(ctx, name, params)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("daemon call failed: %v", err)), nil
		}

		text, isErr := client.InterpretResult(raw)
		if isErr {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}
