package event

// ServerStartedData is the data for server.started events.
type ServerStartedData struct {
	Host     string `json:"host"`
	LinePort int    `json:"linePort"`
	MCPPort  int    `json:"mcpPort"`
}

// ServerStoppedData is the data for server.stopped events.
type ServerStoppedData struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// ConnOpenedData is the data for conn.opened events.
type ConnOpenedData struct {
	Protocol   string `json:"protocol"` // "line" | "mcp"
	RemoteAddr string `json:"remoteAddr"`
	SessionID  string `json:"sessionID,omitempty"`
}

// ConnClosedData is the data for conn.closed events.
type ConnClosedData struct {
	Protocol   string `json:"protocol"`
	RemoteAddr string `json:"remoteAddr"`
	Reason     string `json:"reason"` // "done" | "peer" | "error" | "timeout" | "overflow" | "shutdown"
}

// MessageDispatchedData is the data for message.dispatched events.
type MessageDispatchedData struct {
	Protocol string `json:"protocol"`
	Kind     string `json:"kind"` // legacy type or JSON-RPC method
	Tool     string `json:"tool,omitempty"`
}

// HeartbeatSentData is the data for heartbeat.sent events.
type HeartbeatSentData struct {
	RemoteAddr string  `json:"remoteAddr"`
	Timestamp  float64 `json:"timestamp"`
}

// CatalogReloadedData is the data for catalog.reloaded events.
type CatalogReloadedData struct {
	Path  string `json:"path,omitempty"`
	Tools int    `json:"tools"`
}
