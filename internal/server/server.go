// Package server owns the TCP listeners and per-connection loops for both
// wire protocols: the legacy line protocol and MCP over HTTP. Each accepted
// connection is handled to completion on its own goroutine; connections
// share nothing but the configuration, the executor and the tool catalog.
package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/event"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/metrics"
)

// Config holds protocol server configuration.
type Config struct {
	Host              string
	LinePort          int
	MCPPort           int
	MaxMessageSize    int
	HeartbeatInterval time.Duration
	ReceiveTimeout    time.Duration
	Name              string
	Version           string
	Instructions      string
}

// DefaultConfig returns default protocol server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:              "127.0.0.1",
		LinePort:          55557,
		MCPPort:           55558,
		MaxMessageSize:    1 << 20,
		HeartbeatInterval: 30 * time.Second,
		ReceiveTimeout:    30 * time.Second,
		Name:              "toolgate",
		Version:           "dev",
		Instructions:      "Call tools/list to discover available tools, then tools/call to run one.",
	}
}

// Server accepts and supervises protocol connections.
type Server struct {
	cfg     *Config
	exec    dispatch.Executor
	catalog atomic.Value // *catalog.Catalog

	lineLis net.Listener
	mcpLis  net.Listener

	lineHandler *dispatch.LineHandler
	mcpHandler  *dispatch.MCPHandler

	running int32
	wg      sync.WaitGroup
	start   time.Time
}

// New creates a protocol server. The executor and catalog are the only
// domain collaborators; everything else is configuration.
func New(cfg *Config, exec dispatch.Executor, cat *catalog.Catalog) *Server {
	s := &Server{cfg: cfg, exec: exec}
	s.catalog.Store(cat)
	return s
}

// SetCatalog swaps the advertised tool catalog. Safe to call while serving;
// in-flight requests keep the catalog they started with.
func (s *Server) SetCatalog(cat *catalog.Catalog) {
	if cat != nil {
		s.catalog.Store(cat)
	}
}

// Tools returns the currently advertised tool catalog.
func (s *Server) Tools() []catalog.Tool {
	return s.catalog.Load().(*catalog.Catalog).Tools()
}

// Start binds both listeners and launches the accept loops. It does not
// block; use Stop to shut down.
func (s *Server) Start() error {
	lineLis, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.LinePort)))
	if err != nil {
		return fmt.Errorf("listen line protocol: %w", err)
	}
	mcpLis, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.MCPPort)))
	if err != nil {
		lineLis.Close()
		return fmt.Errorf("listen mcp protocol: %w", err)
	}

	s.lineLis = lineLis
	s.mcpLis = mcpLis
	s.start = time.Now()
	atomic.StoreInt32(&s.running, 1)

	s.lineHandler = &dispatch.LineHandler{
		Exec:              s.exec,
		Catalog:           s.Tools,
		Host:              s.cfg.Host,
		Port:              s.LinePort(),
		HeartbeatInterval: s.cfg.HeartbeatInterval.Seconds(),
		Start:             s.start,
	}
	s.mcpHandler = &dispatch.MCPHandler{
		Exec:         s.exec,
		Catalog:      s.Tools,
		Name:         s.cfg.Name,
		Version:      s.cfg.Version,
		Instructions: s.cfg.Instructions,
	}

	s.wg.Add(2)
	go s.acceptLoop(lineLis, s.handleLineConn)
	go s.acceptLoop(mcpLis, s.handleMCPConn)

	logging.Info().
		Str("host", s.cfg.Host).
		Int("line_port", s.LinePort()).
		Int("mcp_port", s.MCPPort()).
		Msg("protocol server started")

	event.Publish(event.Event{
		Type: event.ServerStarted,
		Data: event.ServerStartedData{Host: s.cfg.Host, LinePort: s.LinePort(), MCPPort: s.MCPPort()},
	})

	return nil
}

// Stop closes the listeners and waits for in-flight connections to finish
// their current cycle. Safe to call more than once.
func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return nil
	}

	s.lineLis.Close()
	s.mcpLis.Close()
	s.wg.Wait()

	uptime := time.Since(s.start).Seconds()
	logging.Info().Float64("uptime_seconds", uptime).Msg("protocol server stopped")
	metrics.Default.LogSummary()

	event.PublishSync(event.Event{
		Type: event.ServerStopped,
		Data: event.ServerStoppedData{UptimeSeconds: uptime},
	})

	return nil
}

// LinePort returns the bound line-protocol port.
func (s *Server) LinePort() int {
	return s.lineLis.Addr().(*net.TCPAddr).Port
}

// MCPPort returns the bound MCP port.
func (s *Server) MCPPort() int {
	return s.mcpLis.Addr().(*net.TCPAddr).Port
}

// LineAddr returns the line listener address.
func (s *Server) LineAddr() string {
	return s.lineLis.Addr().String()
}

// MCPAddr returns the MCP listener address.
func (s *Server) MCPAddr() string {
	return s.mcpLis.Addr().String()
}

// Uptime reports how long the server has been running.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.start)
}

func (s *Server) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// acceptLoop polls for connections until the server stops. The short accept
// deadline keeps the running flag responsive.
func (s *Server) acceptLoop(lis net.Listener, handle func(net.Conn)) {
	defer s.wg.Done()

	for s.isRunning() {
		if tcp, ok := lis.(*net.TCPListener); ok {
			tcp.SetDeadline(time.Now().Add(100 * time.Millisecond))
		}

		conn, err := lis.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !s.isRunning() || errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Error().Err(err).Msg("accept failed")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
