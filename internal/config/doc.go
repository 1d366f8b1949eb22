// Package config provides configuration loading, merging, and path management
// for the toolgate daemon.
//
// # Configuration Loading
//
// The Load function searches for and merges configuration from multiple
// sources in priority order:
//
//  1. Built-in defaults
//  2. Global config (~/.config/toolgate/toolgate.json or .jsonc)
//  3. Project config (<directory>/toolgate.json and <directory>/.toolgate/)
//  4. TOOLGATE_CONFIG file
//  5. TOOLGATE_CONFIG_CONTENT inline JSON
//  6. TOOLGATE_* environment variables
//
// Later sources override earlier ones field by field; zero values in a later
// source leave the merged value untouched. Tool file globs are the exception
// and accumulate across sources in load order.
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with Comments) are accepted:
//   - toolgate.json - Standard JSON configuration
//   - toolgate.jsonc - JSON with comments, processed using tidwall/jsonc
//
// # Variable Interpolation
//
// Configuration files support two placeholder forms:
//   - {env:VAR_NAME} - Expands to environment variable values
//   - {file:path} - Expands to file contents (escaped for JSON)
//
// File paths in {file:path} placeholders may be absolute, relative to the
// config file's directory, or ~/ expanded.
//
// Example:
//
//	{
//	  "host": "{env:GATE_HOST}",
//	  "instructions": "{file:~/bridge-instructions.txt}"
//	}
//
// # Environment Variable Overrides
//
// Individual settings can be overridden without a config file:
//   - TOOLGATE_HOST, TOOLGATE_LINE_PORT, TOOLGATE_MCP_PORT
//   - TOOLGATE_MAX_MESSAGE_SIZE
//   - TOOLGATE_HEARTBEAT_INTERVAL, TOOLGATE_RECEIVE_TIMEOUT (seconds)
//   - TOOLGATE_OPS_PORT (also enables the ops surface)
//   - TOOLGATE_LOG_LEVEL
//   - TOOLGATE_CONFIG - Path to a specific config file
//   - TOOLGATE_CONFIG_CONTENT - Inline JSON configuration
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path
// management through the Paths type:
//   - Data: ~/.local/share/toolgate (XDG_DATA_HOME)
//   - Config: ~/.config/toolgate (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/toolgate (XDG_CACHE_HOME)
//   - State: ~/.local/state/toolgate (XDG_STATE_HOME)
//
// On Windows these map onto APPDATA.
package config
