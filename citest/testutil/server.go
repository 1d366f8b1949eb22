package testutil

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/toolgate/toolgate/internal/bridge"
	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/server"
)

// TestServer wraps a daemon instance for testing
type TestServer struct {
	Server   *server.Server
	Config   *server.Config
	Executor dispatch.Executor
	Catalog  *catalog.Catalog
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	cfg  *server.Config
	exec dispatch.Executor
	cat  *catalog.Catalog
}

// WithHeartbeatInterval sets the unsolicited heartbeat cadence. Zero
// disables heartbeats.
func WithHeartbeatInterval(d time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.cfg.HeartbeatInterval = d
	}
}

// WithReceiveTimeout sets the MCP receive timeout.
func WithReceiveTimeout(d time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.cfg.ReceiveTimeout = d
	}
}

// WithMaxMessageSize bounds the per-connection receive buffer.
func WithMaxMessageSize(n int) TestServerOption {
	return func(c *testServerConfig) {
		c.cfg.MaxMessageSize = n
	}
}

// WithExecutor substitutes the command executor.
func WithExecutor(exec dispatch.Executor) TestServerOption {
	return func(c *testServerConfig) {
		c.exec = exec
	}
}

// WithCatalog substitutes the tool catalog.
func WithCatalog(cat *catalog.Catalog) TestServerOption {
	return func(c *testServerConfig) {
		c.cat = cat
	}
}

// StartTestServer creates and starts a daemon on ephemeral ports. The
// default wiring matches 'toolgate serve': scene bridge executor, built-in
// catalog.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	// Load environment variables from default locations
	_ = godotenv.Load("../../.env")
	_ = godotenv.Load("../.env")
	_ = godotenv.Load(".env")

	cfg := server.DefaultConfig()
	cfg.LinePort = 0
	cfg.MCPPort = 0
	cfg.Name = "toolgate-test"
	cfg.Version = "test"

	tc := &testServerConfig{cfg: cfg}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.exec == nil {
		tc.exec = bridge.NewSceneBridge()
	}
	if tc.cat == nil {
		tc.cat = catalog.Builtin()
	}

	srv := server.New(tc.cfg, tc.exec, tc.cat)
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("failed to start test server: %w", err)
	}

	return &TestServer{
		Server:   srv,
		Config:   tc.cfg,
		Executor: tc.exec,
		Catalog:  tc.cat,
	}, nil
}

// Stop shuts the daemon down.
func (ts *TestServer) Stop() {
	ts.Server.Stop()
}

// LineAddr is the line protocol listener address.
func (ts *TestServer) LineAddr() string {
	return ts.Server.LineAddr()
}

// MCPAddr is the MCP listener address.
func (ts *TestServer) MCPAddr() string {
	return ts.Server.MCPAddr()
}

// MCPEndpoint is the MCP endpoint URL.
func (ts *TestServer) MCPEndpoint() string {
	return fmt.Sprintf("http://%s/mcp", ts.Server.MCPAddr())
}
