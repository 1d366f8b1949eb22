package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/itchyny/gojq"
	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/client"
	"github.com/toolgate/toolgate/internal/config"
)

var (
	callParams string
	callJQ     string
	callMCP    bool
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a tool on a running daemon",
	Long: `Invoke a tool on a running daemon and print its result.

Examples:
  toolgate call ping
  toolgate call spawn_object --params '{"name":"cube","type":"CUBE"}'
  toolgate call list_objects --jq '.objects[].name'
  toolgate call get_scene_snapshot --mcp`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callParams, "params", "", "Tool parameters as JSON")
	callCmd.Flags().StringVar(&callJQ, "jq", "", "Filter the result with a jq expression")
	callCmd.Flags().BoolVar(&callMCP, "mcp", false, "Call over the MCP endpoint instead of the line protocol")
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, false)

	var params json.RawMessage
	if callParams != "" {
		if !json.Valid([]byte(callParams)) {
			return fmt.Errorf("--params is not valid JSON")
		}
		params = json.RawMessage(callParams)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	text, err := callTool(ctx, cfg, args[0], params)
	if err != nil {
		return err
	}

	if callJQ != "" {
		text, err = applyJQ(text, callJQ)
		if err != nil {
			return err
		}
	} else if json.Valid([]byte(text)) {
		var pretty bytes.Buffer
		if json.Indent(&pretty, []byte(text), "", "  ") == nil {
			text = pretty.String()
		}
	}

	fmt.Println(text)
	return nil
}

// callTool invokes the tool over the selected transport. Tool-level failures
// come back as errors with the daemon's message.
func callTool(ctx context.Context, cfg *config.Config, name string, params json.RawMessage) (string, error) {
	if callMCP {
		mc, err := client.NewMCPClient(ctx, mcpEndpoint(cfg))
		if err != nil {
			return "", err
		}
		defer mc.Close()
		return mc.CallTool(ctx, name, params)
	}

	lc := client.NewLineClient(cfg.Host, cfg.LinePort)
	defer lc.Close()

	raw, err := lc.CallTool(ctx, name, params)
	if err != nil {
		return "", err
	}
	text, isErr := client.InterpretResult(raw)
	if isErr {
		return "", fmt.Errorf("tool error: %s", text)
	}
	return text, nil
}

// applyJQ runs a jq expression over the result JSON. String outputs print
// bare, everything else as compact JSON, one line per output.
func applyJQ(text, filter string) (string, error) {
	var input any
	if err := json.Unmarshal([]byte(text), &input); err != nil {
		return "", fmt.Errorf("jq: result is not JSON: %w", err)
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return "", fmt.Errorf("jq: filter parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return "", fmt.Errorf("jq: compile error: %w", err)
	}

	var out []string
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return "", fmt.Errorf("jq: execution error: %w", err)
		}
		switch val := v.(type) {
		case string:
			out = append(out, val)
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("jq: marshal error: %w", err)
			}
			out = append(out, string(encoded))
		}
	}
	return strings.Join(out, "\n"), nil
}
