package testutil

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// MCPResponse is a one-shot MCP HTTP exchange result. Data carries the
// payload of the single SSE data event when the response is SSE-wrapped,
// and the raw body otherwise.
type MCPResponse struct {
	StatusCode int
	Header     http.Header
	Body       string
	Data       string
}

// PostMCP sends one JSON-RPC request body to the MCP endpoint and reads the
// complete response.
func PostMCP(ctx context.Context, endpoint, body string) (*MCPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	return do(req)
}

// RequestMCP sends a bodyless request with the given method.
func RequestMCP(ctx context.Context, method, endpoint string) (*MCPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return do(req)
}

func do(req *http.Request) (*MCPResponse, error) {
	// Every response closes the connection, so pooling only causes stale
	// conn reuse errors.
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &MCPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(raw),
		Data:       extractSSEData(resp.Header.Get("Content-Type"), string(raw)),
	}, nil
}

// SendRawHTTP writes raw bytes to the MCP listener and parses whatever comes
// back, for requests net/http refuses to produce.
func SendRawHTTP(addr, raw string) (*MCPResponse, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := conn.Write([]byte(raw)); err != nil {
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &MCPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
		Data:       extractSSEData(resp.Header.Get("Content-Type"), string(body)),
	}, nil
}

// extractSSEData unwraps a single "data: ..." event. Non-SSE bodies pass
// through untouched.
func extractSSEData(contentType, body string) string {
	if !strings.HasPrefix(contentType, "text/event-stream") {
		return body
	}
	for _, line := range strings.Split(body, "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return data
		}
	}
	return ""
}
