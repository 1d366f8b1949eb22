// Package transport writes protocol payloads to a connection. It owns the
// exact bytes on the wire: newline framing for the line protocol and
// hand-rolled HTTP/1.1 responses for the MCP protocol.
package transport

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/toolgate/toolgate/internal/metrics"
)

// ProtocolVersion is the MCP protocol revision this server speaks. It is
// attached to every HTTP response and reported by initialize.
const ProtocolVersion = "2025-06-18"

// StatusText maps the status codes this server emits to reason phrases.
func StatusText(code int) string {
	switch code {
	case 200:
		return "OK"
	case 202:
		return "Accepted"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 500:
		return "Internal Server Error"
	default:
		return "OK"
	}
}

// SendAll writes the whole buffer, retrying on short writes. A write that
// makes no progress aborts rather than spinning.
func SendAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if n > 0 {
			metrics.Add(metrics.BytesOut, uint64(n))
		}
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrNoProgress
		}
		data = data[n:]
	}
	return nil
}

// SendLine writes one newline-terminated payload.
func SendLine(w io.Writer, payload string) error {
	return SendAll(w, []byte(payload+"\n"))
}

// standardHeaders are emitted on every HTTP response; extras that collide
// with them are dropped.
var standardHeaders = map[string]bool{
	"content-type":         true,
	"content-length":       true,
	"connection":           true,
	"mcp-protocol-version": true,
	"mcp-session-id":       true,
}

// SendHTTPResponse writes a complete HTTP/1.1 response. Content-Length is
// the UTF-8 byte length of the body. Extra headers are written in sorted
// order after the standard block; names colliding with the standard block
// (case-insensitive) are dropped.
func SendHTTPResponse(w io.Writer, body, contentType string, status int, sessionID string, extra map[string]string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "HTTP/1.1 %d %s\r\n", status, StatusText(status))
	fmt.Fprintf(&sb, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&sb, "Content-Length: %d\r\n", len(body))
	sb.WriteString("Connection: close\r\n")
	fmt.Fprintf(&sb, "mcp-protocol-version: %s\r\n", ProtocolVersion)
	if sessionID != "" {
		fmt.Fprintf(&sb, "mcp-session-id: %s\r\n", sessionID)
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		lower := strings.ToLower(name)
		if standardHeaders[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		fmt.Fprintf(&sb, "%s: %s\r\n", name, extra[name])
	}

	sb.WriteString("\r\n")
	sb.WriteString(body)

	return SendAll(w, []byte(sb.String()))
}

// SendSSEResponse wraps the payload as a single SSE data event and sends it
// as a complete response.
func SendSSEResponse(w io.Writer, payload string, status int, sessionID string) error {
	body := "data: " + payload + "\n\n"
	return SendHTTPResponse(w, body, "text/event-stream", status, sessionID, map[string]string{
		"Cache-Control": "no-cache, no-transform",
	})
}
