package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
)

// Config is the full daemon configuration. Durations are in seconds to keep
// the file format friendly to non-Go clients.
type Config struct {
	Host              string   `json:"host,omitempty"`
	LinePort          int      `json:"linePort,omitempty"`
	MCPPort           int      `json:"mcpPort,omitempty"`
	MaxMessageSize    int      `json:"maxMessageSize,omitempty"`
	HeartbeatInterval float64  `json:"heartbeatInterval,omitempty"`
	ReceiveTimeout    float64  `json:"receiveTimeout,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	ToolFiles         []string `json:"toolFiles,omitempty"`

	Ops *OpsConfig `json:"ops,omitempty"`
	Log *LogConfig `json:"log,omitempty"`
}

// OpsConfig controls the operational HTTP surface. Disabled by default.
type OpsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port,omitempty"`
	CORS    bool `json:"cors,omitempty"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
	ToFile bool   `json:"toFile,omitempty"`
	Dir    string `json:"dir,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:              "127.0.0.1",
		LinePort:          55557,
		MCPPort:           55558,
		MaxMessageSize:    1 << 20,
		HeartbeatInterval: 30,
		ReceiveTimeout:    30,
		Ops:               &OpsConfig{Enabled: false, Port: 55559},
		Log:               &LogConfig{Level: "info"},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/toolgate/)
// 3. Project config (<directory>/ and <directory>/.toolgate/)
// 4. TOOLGATE_CONFIG file
// 5. TOOLGATE_CONFIG_CONTENT inline JSON
// 6. TOOLGATE_* environment variables
func Load(directory string) (*Config, error) {
	config := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "toolgate.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "toolgate.jsonc"), globalPath)

	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".toolgate")
		loadOnce(filepath.Join(directory, "toolgate.json"), directory)
		loadOnce(filepath.Join(directory, "toolgate.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "toolgate.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "toolgate.jsonc"), projectConfigDir)
	}

	if configPath := os.Getenv("TOOLGATE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	if configContent := os.Getenv("TOOLGATE_CONFIG_CONTENT"); configContent != "" {
		var inline Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err // File doesn't exist, skip
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			home := os.Getenv("HOME")
			filePath = filepath.Join(home, filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Zero values in the source
// leave the target untouched.
func mergeConfig(target, source *Config) {
	if source.Host != "" {
		target.Host = source.Host
	}
	if source.LinePort != 0 {
		target.LinePort = source.LinePort
	}
	if source.MCPPort != 0 {
		target.MCPPort = source.MCPPort
	}
	if source.MaxMessageSize != 0 {
		target.MaxMessageSize = source.MaxMessageSize
	}
	if source.HeartbeatInterval != 0 {
		target.HeartbeatInterval = source.HeartbeatInterval
	}
	if source.ReceiveTimeout != 0 {
		target.ReceiveTimeout = source.ReceiveTimeout
	}
	if source.Instructions != "" {
		target.Instructions = source.Instructions
	}
	if len(source.ToolFiles) > 0 {
		target.ToolFiles = append(target.ToolFiles, source.ToolFiles...)
	}

	if source.Ops != nil {
		if target.Ops == nil {
			target.Ops = &OpsConfig{}
		}
		target.Ops.Enabled = source.Ops.Enabled
		if source.Ops.Port != 0 {
			target.Ops.Port = source.Ops.Port
		}
		if source.Ops.CORS {
			target.Ops.CORS = true
		}
	}

	if source.Log != nil {
		if target.Log == nil {
			target.Log = &LogConfig{}
		}
		if source.Log.Level != "" {
			target.Log.Level = source.Log.Level
		}
		if source.Log.Pretty {
			target.Log.Pretty = true
		}
		if source.Log.ToFile {
			target.Log.ToFile = true
		}
		if source.Log.Dir != "" {
			target.Log.Dir = source.Log.Dir
		}
	}
}

// applyEnvOverrides applies TOOLGATE_* environment variable overrides.
func applyEnvOverrides(config *Config) {
	if host := os.Getenv("TOOLGATE_HOST"); host != "" {
		config.Host = host
	}
	if port, ok := envInt("TOOLGATE_LINE_PORT"); ok {
		config.LinePort = port
	}
	if port, ok := envInt("TOOLGATE_MCP_PORT"); ok {
		config.MCPPort = port
	}
	if size, ok := envInt("TOOLGATE_MAX_MESSAGE_SIZE"); ok {
		config.MaxMessageSize = size
	}
	if v, ok := envFloat("TOOLGATE_HEARTBEAT_INTERVAL"); ok {
		config.HeartbeatInterval = v
	}
	if v, ok := envFloat("TOOLGATE_RECEIVE_TIMEOUT"); ok {
		config.ReceiveTimeout = v
	}
	if port, ok := envInt("TOOLGATE_OPS_PORT"); ok {
		if config.Ops == nil {
			config.Ops = &OpsConfig{}
		}
		config.Ops.Enabled = true
		config.Ops.Port = port
	}
	if level := os.Getenv("TOOLGATE_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &LogConfig{}
		}
		config.Log.Level = level
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Save saves the configuration to a file.
func Save(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
