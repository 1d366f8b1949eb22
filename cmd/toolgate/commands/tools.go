package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/client"
	"github.com/toolgate/toolgate/internal/config"
)

var toolsMCP bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools a running daemon exposes",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsMCP, "mcp", false, "Query over the MCP endpoint instead of the line protocol")
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tools, err := listDaemonTools(ctx, cfg)
	if err != nil {
		return err
	}

	if len(tools) == 0 {
		fmt.Println("no tools registered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, tool := range tools {
		fmt.Fprintf(w, "%s\t%s\n", color.New(color.FgCyan).Sprint(tool.Name), tool.Description)
	}
	return w.Flush()
}

func listDaemonTools(ctx context.Context, cfg *config.Config) ([]client.ToolInfo, error) {
	if toolsMCP {
		mc, err := client.NewMCPClient(ctx, mcpEndpoint(cfg))
		if err != nil {
			return nil, err
		}
		defer mc.Close()
		return mc.Tools(ctx)
	}

	lc := client.NewLineClient(cfg.Host, cfg.LinePort)
	defer lc.Close()
	return lc.Tools(ctx)
}

// mcpEndpoint is the daemon's MCP URL for the loaded config.
func mcpEndpoint(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d/mcp", cfg.Host, cfg.MCPPort)
}
