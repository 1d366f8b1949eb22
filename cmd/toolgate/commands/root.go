// Package commands provides the CLI commands for toolgate.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/logging"
)

var (
	// Version information set at build time
	Version   = "1.0.0"
	BuildTime = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	printLogs  bool
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Toolgate - dual-protocol tool gateway daemon",
	Long: `Toolgate exposes a catalog of tools to automation clients over two wire
protocols at once: a legacy newline-delimited JSON protocol and MCP
streamable HTTP. Tool calls are forwarded to a command executor.

Run 'toolgate serve' to start the daemon, then 'toolgate status',
'toolgate tools' or 'toolgate call' to talk to it.`,
	Version: Version,
	// If no subcommand, show help
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr in client commands")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("toolgate %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration for a command. The --config flag rides the
// same path as TOOLGATE_CONFIG so precedence stays identical.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		os.Setenv("TOOLGATE_CONFIG", configPath)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.Load(workDir)
}

// initLogging applies the config log section plus the global flag overrides.
// Client commands stay quiet below warn unless --print-logs or --log-level
// asks otherwise; the daemon always logs.
func initLogging(cfg *config.Config, daemon bool) {
	logCfg := logging.DefaultConfig()
	if cfg.Log != nil {
		logCfg.Level = logging.ParseLevel(cfg.Log.Level)
		logCfg.Pretty = cfg.Log.Pretty
		logCfg.LogToFile = daemon && cfg.Log.ToFile
		if cfg.Log.Dir != "" {
			logCfg.LogDir = cfg.Log.Dir
		}
	}
	if !daemon && !printLogs {
		logCfg.Level = logging.WarnLevel
	}
	if logLevel != "" {
		logCfg.Level = logging.ParseLevel(logLevel)
	}
	logging.Init(logCfg)
}
