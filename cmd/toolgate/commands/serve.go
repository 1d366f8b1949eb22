package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/bridge"
	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/metrics"
	"github.com/toolgate/toolgate/internal/ops"
	"github.com/toolgate/toolgate/internal/server"
)

var (
	serveLinePort int
	serveMCPPort  int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolgate daemon",
	Long: `Start the daemon with both listeners: the legacy line protocol and the
MCP streamable HTTP endpoint. When ops.enabled is set in the config (or
TOOLGATE_OPS_PORT is present) an operational HTTP surface with status,
tools, metrics and an event stream starts alongside.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&serveLinePort, "port", "p", 0, "Line protocol port (overrides config)")
	serveCmd.Flags().IntVar(&serveMCPPort, "mcp-port", 0, "MCP endpoint port (overrides config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogging(cfg, true)
	defer logging.Close()

	if serveHostname != "" {
		cfg.Host = serveHostname
	}
	if serveLinePort != 0 {
		cfg.LinePort = serveLinePort
	}
	if serveMCPPort != 0 {
		cfg.MCPPort = serveMCPPort
	}

	cat, err := buildCatalog(cfg)
	if err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Host
	srvCfg.LinePort = cfg.LinePort
	srvCfg.MCPPort = cfg.MCPPort
	srvCfg.MaxMessageSize = cfg.MaxMessageSize
	srvCfg.HeartbeatInterval = secondsToDuration(cfg.HeartbeatInterval)
	srvCfg.ReceiveTimeout = secondsToDuration(cfg.ReceiveTimeout)
	srvCfg.Version = Version
	if cfg.Instructions != "" {
		srvCfg.Instructions = cfg.Instructions
	}

	srv := server.New(srvCfg, bridge.NewSceneBridge(), cat)
	if err := srv.Start(); err != nil {
		return err
	}

	// Swap the catalog in place when a tool definition file changes.
	watcher, err := catalog.NewWatcher(cfg.ToolFiles, srv.SetCatalog)
	if err != nil {
		logging.Warn().Err(err).Msg("tool file watcher unavailable")
	} else if watcher != nil {
		watcher.Start()
	}

	var opsSrv *ops.Server
	if cfg.Ops != nil && cfg.Ops.Enabled {
		opsSrv = ops.New(&ops.Config{
			Host:       cfg.Host,
			Port:       cfg.Ops.Port,
			EnableCORS: cfg.Ops.CORS,
		}, ops.Sources{
			Status:  statusSource(cfg, srv),
			Tools:   srv.Tools,
			Metrics: metrics.Snapshot,
		})
		go func() {
			logging.Info().Str("host", cfg.Host).Int("port", cfg.Ops.Port).Msg("ops server started")
			if err := opsSrv.Start(); err != nil && err != http.ErrServerClosed {
				logging.Error().Err(err).Msg("ops server failed")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	if watcher != nil {
		watcher.Stop()
	}
	if opsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("ops server shutdown failed")
		}
		cancel()
	}
	return srv.Stop()
}

// buildCatalog loads tool definitions from the configured files, or the
// built-in set when none are configured.
func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if len(cfg.ToolFiles) == 0 {
		return catalog.Builtin(), nil
	}
	cat, err := catalog.LoadGlobs(cfg.ToolFiles)
	if err != nil {
		return nil, err
	}
	logging.Info().Int("tools", cat.Len()).Strs("patterns", cfg.ToolFiles).Msg("tool catalog loaded")
	return cat, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// statusSource mirrors the line protocol status message for the ops surface.
func statusSource(cfg *config.Config, srv *server.Server) func() any {
	return func() any {
		return map[string]any{
			"running":           true,
			"host":              cfg.Host,
			"linePort":          srv.LinePort(),
			"mcpPort":           srv.MCPPort(),
			"uptimeSeconds":     srv.Uptime().Seconds(),
			"heartbeatInterval": cfg.HeartbeatInterval,
			"version":           Version,
		}
	}
}
