package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// LineConn is a raw line-protocol connection. Unlike the production client
// it hides nothing: heartbeats are readable frames and arbitrary bytes can
// go on the wire.
type LineConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// DialLine connects to a line protocol listener.
func DialLine(addr string) (*LineConn, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to dial line protocol: %w", err)
	}
	return &LineConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Send marshals msg and writes it as one newline-terminated frame.
func (c *LineConn) Send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.SendRaw(string(payload))
}

// SendRaw writes payload as one newline-terminated frame.
func (c *LineConn) SendRaw(payload string) error {
	_, err := c.conn.Write(append([]byte(payload), '\n'))
	return err
}

// SendBytes writes bytes with no framing, for partial-frame tests.
func (c *LineConn) SendBytes(b []byte) error {
	_, err := c.conn.Write(b)
	return err
}

// ReadFrame returns the next frame, heartbeats included.
func (c *LineConn) ReadFrame(timeout time.Duration) (json.RawMessage, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimSpace(line)), nil
}

// ReadReply returns the next non-heartbeat frame.
func (c *LineConn) ReadReply(timeout time.Duration) (json.RawMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no reply within %s", timeout)
		}
		frame, err := c.ReadFrame(remaining)
		if err != nil {
			return nil, err
		}
		if !IsHeartbeat(frame) {
			return frame, nil
		}
	}
}

// Roundtrip sends msg and returns the next non-heartbeat frame.
func (c *LineConn) Roundtrip(msg any, timeout time.Duration) (json.RawMessage, error) {
	if err := c.Send(msg); err != nil {
		return nil, err
	}
	return c.ReadReply(timeout)
}

// Close closes the connection.
func (c *LineConn) Close() error {
	return c.conn.Close()
}

// IsHeartbeat reports whether the frame is an unsolicited heartbeat.
func IsHeartbeat(frame json.RawMessage) bool {
	var probe struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(frame, &probe) == nil && probe.Type == "heartbeat"
}
