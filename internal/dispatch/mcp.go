package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/event"
	"github.com/toolgate/toolgate/internal/framing"
	"github.com/toolgate/toolgate/internal/jsonrpc"
	"github.com/toolgate/toolgate/internal/metrics"
	"github.com/toolgate/toolgate/internal/transport"
)

// HTTPReply is a fully resolved HTTP response. SSE replies are wrapped as a
// single data event by the transport.
type HTTPReply struct {
	Status      int
	ContentType string
	Body        string
	SSE         bool
	Headers     map[string]string
}

// MCPHandler answers JSON-RPC-over-HTTP requests. One instance serves a
// whole listener.
type MCPHandler struct {
	Exec         Executor
	Catalog      func() []catalog.Tool
	Name         string
	Version      string
	Instructions string
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct {
	Tools struct{} `json:"tools"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
	Instructions    string       `json:"instructions"`
}

type toolsResult struct {
	Tools []catalog.Tool `json:"tools"`
}

type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// Dispatch resolves one raw HTTP request to one reply. The connection always
// closes after the reply, so every path returns something to send.
func (h *MCPHandler) Dispatch(ctx context.Context, raw string) HTTPReply {
	metrics.Inc(metrics.HTTPRequests)

	req, err := framing.ParseRequest(raw)
	if err != nil {
		if errors.Is(err, framing.ErrBadRequestLine) {
			return textReply(400, "Invalid request line")
		}
		return textReply(400, "Invalid HTTP request")
	}

	switch req.Method {
	case "GET":
		// Bare stream acknowledgement, no events follow.
		return HTTPReply{
			Status:      200,
			ContentType: "text/event-stream",
			Headers:     map[string]string{"Cache-Control": "no-cache, no-transform"},
		}
	case "POST":
		return h.dispatchRPC(ctx, req.Body)
	default:
		return textReply(405, "Method Not Allowed")
	}
}

func (h *MCPHandler) dispatchRPC(ctx context.Context, body string) HTTPReply {
	var req jsonrpc.Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return rpcError(nil, jsonrpc.CodeParseError, err.Error())
	}

	// A body with no method at all is treated as a best-effort notification.
	if !req.HasMethod() {
		return emptyAck()
	}

	method, ok := req.MethodName()
	if !ok {
		return rpcError(req.ID, jsonrpc.CodeInvalidRequest, "Invalid request method")
	}

	event.Publish(event.Event{
		Type: event.MessageDispatched,
		Data: event.MessageDispatchedData{Protocol: "mcp", Kind: method},
	})

	// Notifications are acknowledged without a body, whatever the method.
	if req.IsNotification() {
		return emptyAck()
	}

	switch method {
	case "initialize":
		return rpcResult(req.ID, initializeResult{
			ProtocolVersion: transport.ProtocolVersion,
			ServerInfo:      serverInfo{Name: h.Name, Version: h.Version},
			Instructions:    h.Instructions,
		})
	case "tools/list":
		return rpcResult(req.ID, toolsResult{Tools: h.Catalog()})
	case "tools/call":
		return h.dispatchToolCall(ctx, req)
	default:
		return rpcError(req.ID, jsonrpc.CodeMethodNotFound, "Unknown method: "+method)
	}
}

func (h *MCPHandler) dispatchToolCall(ctx context.Context, req jsonrpc.Request) HTTPReply {
	var params map[string]json.RawMessage
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil || params == nil {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, "Missing params for tools/call")
	}

	var name string
	if raw, ok := params["name"]; !ok || json.Unmarshal(raw, &name) != nil || name == "" {
		return rpcError(req.ID, jsonrpc.CodeInvalidParams, "Missing tool name")
	}

	args := json.RawMessage("{}")
	if raw, ok := params["arguments"]; ok {
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
			args = raw
		}
	}

	metrics.Inc(metrics.ToolCalls)
	text, isError := h.runTool(ctx, name, args)
	if isError {
		metrics.Inc(metrics.ToolErrors)
	}

	return rpcResult(req.ID, callResult{
		Content: []contentItem{{Type: "text", Text: text}},
		IsError: isError,
	})
}

// runTool executes the tool and reduces its output to content text plus a
// failure flag. Tool failures are content, never JSON-RPC errors.
func (h *MCPHandler) runTool(ctx context.Context, name string, args json.RawMessage) (string, bool) {
	raw, err := h.Exec.Execute(ctx, name, args)
	if err != nil {
		return err.Error(), true
	}

	var parsed map[string]json.RawMessage
	if json.Unmarshal(raw, &parsed) != nil || parsed == nil {
		return "Failed to parse command response", true
	}

	success := true
	statusMatched := false
	if rawStatus, ok := parsed["status"]; ok {
		var status string
		if json.Unmarshal(rawStatus, &status) == nil {
			success = strings.EqualFold(status, "success")
			statusMatched = true
		}
	}
	if !statusMatched {
		if rawSuccess, ok := parsed["success"]; ok {
			var b bool
			if json.Unmarshal(rawSuccess, &b) == nil {
				success = b
			}
		}
	}

	// An object-valued result field is unwrapped; anything else passes the
	// whole output through.
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

func rpcResult(id json.RawMessage, result any) HTTPReply {
	return HTTPReply{
		Status: 200,
		Body:   jsonrpc.Encode(jsonrpc.NewResponse(id, result)),
		SSE:    true,
	}
}

func rpcError(id json.RawMessage, code int, message string) HTTPReply {
	return jsonReply(400, jsonrpc.Encode(jsonrpc.NewError(id, code, message)))
}

func emptyAck() HTTPReply {
	return jsonReply(202, "")
}

func textReply(status int, body string) HTTPReply {
	return HTTPReply{Status: status, ContentType: "text/plain", Body: body}
}

func jsonReply(status int, body string) HTTPReply {
	return HTTPReply{Status: status, ContentType: "application/json", Body: body}
}
