// Package client provides clients for a running toolgate daemon: a
// line-protocol client used by the CLI and the stdio gateway, and an MCP
// client for the streamable HTTP endpoint.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/toolgate/toolgate/internal/logging"
)

const (
	// DialTimeout is the timeout for a single connection attempt.
	DialTimeout = 5 * time.Second
	// ReadTimeout is how long to wait for a response line.
	ReadTimeout = 10 * time.Second
	// ReconnectInitialInterval is the initial interval for dial backoff.
	ReconnectInitialInterval = 200 * time.Millisecond
	// ReconnectMaxInterval is the maximum interval for dial backoff.
	ReconnectMaxInterval = 5 * time.Second
	// ReconnectMaxRetries is the maximum number of redial attempts per call.
	ReconnectMaxRetries = 4
)

// newDialBackoff creates an exponential backoff with jitter for dialing.
// Jitter keeps a herd of clients from retrying in lockstep.
func newDialBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ReconnectInitialInterval
	b.MaxInterval = ReconnectMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, ReconnectMaxRetries), ctx)
}

// LineClient talks the newline-delimited JSON protocol to a daemon. Safe for
// concurrent use; requests are serialized over one connection. The connection
// is established lazily and re-established after errors on the next call.
type LineClient struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewLineClient creates a client for the line endpoint at host:port.
func NewLineClient(host string, port int) *LineClient {
	return &LineClient{addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

// connect dials the daemon if no connection is live. Callers must hold mu.
func (c *LineClient) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	var conn net.Conn
	dial := func() error {
		d := net.Dialer{Timeout: DialTimeout}
		var err error
		conn, err = d.DialContext(ctx, "tcp", c.addr)
		return err
	}
	if err := backoff.Retry(dial, newDialBackoff(ctx)); err != nil {
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetKeepAlive(true)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// reset drops the connection so the next call redials. Callers must hold mu.
func (c *LineClient) reset() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.reader = nil
}

// Send sends one message and returns the first non-heartbeat response line.
func (c *LineClient) Send(ctx context.Context, msg any) (json.RawMessage, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, payload)
	if err != nil {
		c.reset()
		return nil, err
	}
	return resp, nil
}

func (c *LineClient) roundTrip(ctx context.Context, payload []byte) (json.RawMessage, error) {
	deadline := time.Now().Add(ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	// The reader assembles partial lines; unsolicited heartbeat frames are
	// skipped until the actual response arrives.
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			return nil, fmt.Errorf("receive: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if isHeartbeat(line) {
			logging.Debug().Str("addr", c.addr).Msg("skipping heartbeat frame")
			continue
		}
		return json.RawMessage(line), nil
	}
}

// isHeartbeat reports whether a frame is an unsolicited heartbeat.
func isHeartbeat(line []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return false
	}
	return probe.Type == "heartbeat"
}

// Close closes the connection if one is open.
func (c *LineClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Status is the daemon's answer to a status message.
type Status struct {
	Type              string  `json:"type"`
	Running           bool    `json:"running"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Host              string  `json:"host"`
	Port              int     `json:"port"`
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

// ToolInfo is one entry of a tools listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Ping checks connectivity.
func (c *LineClient) Ping(ctx context.Context) error {
	raw, err := c.Send(ctx, map[string]string{"type": "ping"})
	if err != nil {
		return err
	}

	var resp struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if resp.Type != "pong" {
		return fmt.Errorf("unexpected reply: %s", raw)
	}
	return nil
}

// Status fetches the daemon status.
func (c *LineClient) Status(ctx context.Context) (*Status, error) {
	raw, err := c.Send(ctx, map[string]string{"type": "status"})
	if err != nil {
		return nil, err
	}

	if msg, ok := errorMessage(raw); ok {
		return nil, errors.New(msg)
	}

	var status Status
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return &status, nil
}

// Tools lists the daemon's tools.
func (c *LineClient) Tools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.Send(ctx, map[string]string{"type": "tools"})
	if err != nil {
		return nil, err
	}

	if msg, ok := errorMessage(raw); ok {
		return nil, errors.New(msg)
	}

	var resp struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return resp.Tools, nil
}

// CallTool invokes a tool and returns the raw result payload verbatim. Only
// protocol failures produce an error; a tool-level error envelope comes back
// as a payload for the caller to interpret (see InterpretResult).
func (c *LineClient) CallTool(ctx context.Context, tool string, params json.RawMessage) (json.RawMessage, error) {
	msg := map[string]any{"type": "call_tool", "tool": tool}
	if len(params) > 0 {
		msg["params"] = params
	}
	return c.Send(ctx, msg)
}

// errorMessage extracts a dispatch-level {"error": ...} envelope.
func errorMessage(raw json.RawMessage) (string, bool) {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", false
	}
	return env.Error, env.Error != ""
}

// InterpretResult extracts display text and error-ness from a tool result
// payload, using the same rules as the daemon's MCP surface: a string status
// field decides first, then a boolean success field, then a bare error
// envelope. An object-valued result field is unwrapped.
func InterpretResult(raw json.RawMessage) (string, bool) {
	var parsed map[string]json.RawMessage
	if json.Unmarshal(raw, &parsed) != nil || parsed == nil {
		return "Failed to parse command response", true
	}

	success := true
	matched := false
	if rawStatus, ok := parsed["status"]; ok {
		var status string
		if json.Unmarshal(rawStatus, &status) == nil {
			success = strings.EqualFold(status, "success")
			matched = true
		}
	}
	if !matched {
		if rawSuccess, ok := parsed["success"]; ok {
			var b bool
			if json.Unmarshal(rawSuccess, &b) == nil {
				success = b
				matched = true
			}
		}
	}
	if !matched {
		if _, ok := parsed["error"]; ok {
			success = false
		}
	}

	text := string(raw)
	if result, ok := parsed["result"]; ok {
		if trimmed := bytes.TrimSpace(result); len(trimmed) > 0 && trimmed[0] == '{' {
			var compact bytes.Buffer
			if json.Compact(&compact, result) == nil {
				text = compact.String()
			}
		}
	}

	return text, !success
}
