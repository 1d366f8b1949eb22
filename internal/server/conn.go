package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/toolgate/toolgate/internal/buffer"
	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/event"
	"github.com/toolgate/toolgate/internal/framing"
	"github.com/toolgate/toolgate/internal/logging"
	"github.com/toolgate/toolgate/internal/metrics"
	"github.com/toolgate/toolgate/internal/transport"
)

const (
	readChunkSize    = 65536
	readPollInterval = 5 * time.Millisecond
)

func configureConn(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetReadBuffer(readChunkSize)
		tcp.SetWriteBuffer(readChunkSize)
	}
}

// readChunk reads with a short deadline so the caller can poll the running
// flag and timers between reads. Returns n == 0 with a nil error when no
// data arrived before the deadline.
func readChunk(conn net.Conn, chunk []byte) (int, error) {
	conn.SetReadDeadline(time.Now().Add(readPollInterval))
	n, err := conn.Read(chunk)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// handleLineConn serves the legacy line protocol: messages keep flowing on
// one connection until the peer leaves, an error occurs, or the buffer
// outgrows its bound (which drops the connection without a response).
func (s *Server) handleLineConn(conn net.Conn) {
	defer conn.Close()
	configureConn(conn)

	remote := conn.RemoteAddr().String()
	metrics.Inc(metrics.LineConnections)
	logging.Debug().Str("remote", remote).Msg("line connection opened")
	event.Publish(event.Event{
		Type: event.ConnOpened,
		Data: event.ConnOpenedData{Protocol: "line", RemoteAddr: remote},
	})

	reason := "shutdown"
	defer func() {
		logging.Debug().Str("remote", remote).Str("reason", reason).Msg("line connection closed")
		event.Publish(event.Event{
			Type: event.ConnClosed,
			Data: event.ConnClosedData{Protocol: "line", RemoteAddr: remote, Reason: reason},
		})
	}()

	ctx := context.Background()
	buf := buffer.New()
	framer := framing.NewLineFramer()
	chunk := make([]byte, readChunkSize)
	lastHeartbeat := time.Now()

	for s.isRunning() {
		n, err := readChunk(conn, chunk)
		if err != nil {
			if err == io.EOF {
				reason = "peer"
			} else {
				reason = "error"
				logging.Debug().Err(err).Str("remote", remote).Msg("line read failed")
			}
			return
		}

		if n > 0 {
			metrics.Add(metrics.BytesIn, uint64(n))
			buf.Append(chunk[:n])
			if buf.Len() > s.cfg.MaxMessageSize {
				metrics.Inc(metrics.Overflows)
				logging.Warn().
					Int("size", buf.Len()).
					Int("max", s.cfg.MaxMessageSize).
					Str("remote", remote).
					Msg("line buffer overflow, dropping connection")
				reason = "overflow"
				return
			}

			for {
				msg, ok := framer.TryExtract(buf)
				if !ok {
					break
				}
				reply := s.lineHandler.Dispatch(ctx, msg)
				if err := transport.SendLine(conn, reply); err != nil {
					metrics.Inc(metrics.SendFailures)
					logging.Debug().Err(err).Str("remote", remote).Msg("line send failed")
					reason = "error"
					return
				}
			}
		}

		lastHeartbeat = s.maybeHeartbeat(conn, remote, lastHeartbeat)
	}
}

// maybeHeartbeat emits an unsolicited heartbeat when the interval has
// elapsed. Failures are logged but do not close the connection, and do not
// advance the heartbeat clock.
func (s *Server) maybeHeartbeat(conn net.Conn, remote string, last time.Time) time.Time {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		return last
	}

	now := time.Now()
	if now.Sub(last) < interval {
		return last
	}

	if err := transport.SendLine(conn, dispatch.HeartbeatPayload(now)); err != nil {
		metrics.Inc(metrics.SendFailures)
		logging.Warn().Err(err).Str("remote", remote).Msg("heartbeat send failed")
		return last
	}

	metrics.Inc(metrics.Heartbeats)
	event.Publish(event.Event{
		Type: event.HeartbeatSent,
		Data: event.HeartbeatSentData{RemoteAddr: remote, Timestamp: float64(now.UnixNano()) / 1e9},
	})
	return now
}

// handleMCPConn serves one HTTP request and closes. The receive timeout is
// measured from connection start; hitting it closes without a response.
func (s *Server) handleMCPConn(conn net.Conn) {
	defer conn.Close()
	configureConn(conn)

	remote := conn.RemoteAddr().String()
	sessionID := ulid.Make().String()
	metrics.Inc(metrics.MCPConnections)
	logging.Debug().Str("remote", remote).Str("session", sessionID).Msg("mcp connection opened")
	event.Publish(event.Event{
		Type: event.ConnOpened,
		Data: event.ConnOpenedData{Protocol: "mcp", RemoteAddr: remote, SessionID: sessionID},
	})

	reason := "shutdown"
	defer func() {
		logging.Debug().Str("remote", remote).Str("reason", reason).Msg("mcp connection closed")
		event.Publish(event.Event{
			Type: event.ConnClosed,
			Data: event.ConnClosedData{Protocol: "mcp", RemoteAddr: remote, Reason: reason},
		})
	}()

	var deadline time.Time
	if s.cfg.ReceiveTimeout > 0 {
		deadline = time.Now().Add(s.cfg.ReceiveTimeout)
	}

	buf := buffer.New()
	framer := framing.NewHTTPFramer()
	chunk := make([]byte, readChunkSize)

	for s.isRunning() {
		if !deadline.IsZero() && time.Now().After(deadline) {
			metrics.Inc(metrics.Timeouts)
			logging.Debug().Str("remote", remote).Msg("receive timeout, closing without response")
			reason = "timeout"
			return
		}

		n, err := readChunk(conn, chunk)
		if err != nil {
			if err == io.EOF {
				reason = "peer"
			} else {
				reason = "error"
				logging.Debug().Err(err).Str("remote", remote).Msg("mcp read failed")
			}
			return
		}

		if n > 0 {
			metrics.Add(metrics.BytesIn, uint64(n))
			buf.Append(chunk[:n])
			if buf.Len() > s.cfg.MaxMessageSize {
				metrics.Inc(metrics.Overflows)
				logging.Warn().
					Int("size", buf.Len()).
					Int("max", s.cfg.MaxMessageSize).
					Str("remote", remote).
					Msg("mcp buffer overflow")
				// Best effort; the connection is going away regardless.
				_ = transport.SendHTTPResponse(conn, "Request too large", "text/plain", 400, sessionID, nil)
				reason = "overflow"
				return
			}
		}

		raw, ok := framer.TryExtract(buf)
		if !ok {
			continue
		}

		reply := s.mcpHandler.Dispatch(context.Background(), raw)
		if err := sendReply(conn, reply, sessionID); err != nil {
			metrics.Inc(metrics.SendFailures)
			logging.Debug().Err(err).Str("remote", remote).Msg("mcp send failed")
			reason = "error"
			return
		}
		reason = "done"
		return
	}
}

func sendReply(conn net.Conn, reply dispatch.HTTPReply, sessionID string) error {
	if reply.SSE {
		return transport.SendSSEResponse(conn, reply.Body, reply.Status, sessionID)
	}
	return transport.SendHTTPResponse(conn, reply.Body, reply.ContentType, reply.Status, sessionID, reply.Headers)
}
