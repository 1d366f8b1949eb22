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
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running daemon",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, false)

	lc := client.NewLineClient(cfg.Host, cfg.LinePort)
	defer lc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := lc.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s:%d: %w", cfg.Host, cfg.LinePort, err)
	}

	state := color.New(color.FgGreen, color.Bold).Sprint("running")
	if !st.Running {
		state = color.New(color.FgYellow, color.Bold).Sprint("stopping")
	}
	fmt.Printf("%s %s\n", color.New(color.FgCyan, color.Bold).Sprint("toolgate"), state)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  host\t%s\n", st.Host)
	fmt.Fprintf(w, "  line port\t%d\n", st.Port)
	fmt.Fprintf(w, "  uptime\t%s\n", time.Duration(st.UptimeSeconds*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(w, "  heartbeat\t%gs\n", st.HeartbeatInterval)
	return w.Flush()
}
