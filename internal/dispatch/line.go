package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/event"
	"github.com/toolgate/toolgate/internal/metrics"
)

// LineHandler answers legacy line-protocol messages. One instance serves a
// whole listener; it holds no per-connection state.
type LineHandler struct {
	Exec              Executor
	Catalog           func() []catalog.Tool
	Host              string
	Port              int
	HeartbeatInterval float64
	Start             time.Time
}

type lineMessage struct {
	Type   string          `json:"type"`
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

type pongEnvelope struct {
	Type string `json:"type"`
}

type statusEnvelope struct {
	Type              string  `json:"type"`
	Running           bool    `json:"running"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Host              string  `json:"host"`
	Port              int     `json:"port"`
	HeartbeatInterval float64 `json:"heartbeat_interval"`
}

type toolSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type toolsEnvelope struct {
	Type  string        `json:"type"`
	Tools []toolSummary `json:"tools"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

type heartbeatEnvelope struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

// Dispatch resolves one line-protocol message to one response payload. The
// payload is returned without its trailing newline; the transport adds it.
func (h *LineHandler) Dispatch(ctx context.Context, line string) string {
	metrics.Inc(metrics.LineMessages)

	var msg lineMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return encode(errorEnvelope{Error: "Invalid JSON"})
	}

	event.Publish(event.Event{
		Type: event.MessageDispatched,
		Data: event.MessageDispatchedData{Protocol: "line", Kind: msg.Type, Tool: msg.Tool},
	})

	switch msg.Type {
	case "":
		return encode(errorEnvelope{Error: "Missing message type"})
	case "ping":
		return encode(pongEnvelope{Type: "pong"})
	case "status":
		return encode(statusEnvelope{
			Type:              "status",
			Running:           true,
			UptimeSeconds:     time.Since(h.Start).Seconds(),
			Host:              h.Host,
			Port:              h.Port,
			HeartbeatInterval: h.HeartbeatInterval,
		})
	case "tools":
		tools := h.Catalog()
		summaries := make([]toolSummary, 0, len(tools))
		for _, t := range tools {
			summaries = append(summaries, toolSummary{Name: t.Name, Description: t.Description})
		}
		return encode(toolsEnvelope{Type: "tools", Tools: summaries})
	case "call_tool":
		return h.callTool(ctx, msg)
	default:
		return encode(errorEnvelope{Error: "Unknown message type: " + msg.Type})
	}
}

// callTool forwards to the executor and returns its output verbatim. The
// executor is trusted to emit well-formed JSON.
func (h *LineHandler) callTool(ctx context.Context, msg lineMessage) string {
	if msg.Tool == "" {
		return encode(errorEnvelope{Error: "Missing tool name"})
	}

	metrics.Inc(metrics.ToolCalls)
	result, err := h.Exec.Execute(ctx, msg.Tool, msg.Params)
	if err != nil {
		metrics.Inc(metrics.ToolErrors)
		return encode(errorEnvelope{Error: err.Error()})
	}
	return string(result)
}

// HeartbeatPayload builds the unsolicited heartbeat message.
func HeartbeatPayload(now time.Time) string {
	return encode(heartbeatEnvelope{
		Type:      "heartbeat",
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
	})
}
