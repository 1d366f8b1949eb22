package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient talks JSON-RPC to the daemon's streamable HTTP endpoint using the
// official MCP SDK.
type MCPClient struct {
	session *sdkmcp.ClientSession
}

// NewMCPClient connects to the MCP endpoint and performs the initialize
// handshake.
func NewMCPClient(ctx context.Context, endpoint string) (*MCPClient, error) {
	sdkClient := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "toolgate-cli",
		Version: "1.0.0",
	}, nil)

	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &MCPClient{session: session}, nil
}

// ServerInfo returns the server identity from the initialize result.
func (c *MCPClient) ServerInfo() (name, version string) {
	if init := c.session.InitializeResult(); init != nil {
		return init.ServerInfo.Name, init.ServerInfo.Version
	}
	return "", ""
}

// Tools lists the daemon's tools over MCP.
func (c *MCPClient) Tools(ctx context.Context) ([]ToolInfo, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, err
	}

	tools := make([]ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, ToolInfo{Name: t.Name, Description: t.Description})
	}
	return tools, nil
}

// CallTool invokes a tool over MCP and returns the concatenated text content.
func (c *MCPClient) CallTool(ctx context.Context, name string, params json.RawMessage) (string, error) {
	var args map[string]any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return "", fmt.Errorf("invalid params: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", err
	}

	var output strings.Builder
	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			output.WriteString(textContent.Text)
		}
	}

	if result.IsError {
		return "", fmt.Errorf("tool error: %s", output.String())
	}
	return output.String(), nil
}

// Close shuts the session down.
func (c *MCPClient) Close() error {
	return c.session.Close()
}
