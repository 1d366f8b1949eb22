// Package metrics tracks server counters. Counters are atomic and cheap
// enough to bump from hot paths.
package metrics

import (
	"sort"
	"sync/atomic"

	"github.com/toolgate/toolgate/internal/logging"
)

// Counter identifies one tracked counter.
type Counter int

const (
	LineConnections Counter = iota
	MCPConnections
	LineMessages
	HTTPRequests
	ToolCalls
	ToolErrors
	Heartbeats
	Timeouts
	Overflows
	SendFailures
	BytesIn
	BytesOut
	counterCount
)

var counterNames = [counterCount]string{
	LineConnections: "line_connections",
	MCPConnections:  "mcp_connections",
	LineMessages:    "line_messages",
	HTTPRequests:    "http_requests",
	ToolCalls:       "tool_calls",
	ToolErrors:      "tool_errors",
	Heartbeats:      "heartbeats",
	Timeouts:        "timeouts",
	Overflows:       "overflows",
	SendFailures:    "send_failures",
	BytesIn:         "bytes_in",
	BytesOut:        "bytes_out",
}

// Name returns the counter's snake_case name.
func (c Counter) Name() string {
	if c < 0 || c >= counterCount {
		return "unknown"
	}
	return counterNames[c]
}

// Metrics is a fixed set of named counters.
type Metrics struct {
	counters [counterCount]uint64
}

// New creates a zeroed metrics set.
func New() *Metrics {
	return &Metrics{}
}

// Inc bumps a counter by one.
func (m *Metrics) Inc(c Counter) {
	m.Add(c, 1)
}

// Add bumps a counter by n.
func (m *Metrics) Add(c Counter, n uint64) {
	if c < 0 || c >= counterCount {
		return
	}
	atomic.AddUint64(&m.counters[c], n)
}

// Get reads one counter.
func (m *Metrics) Get(c Counter) uint64 {
	if c < 0 || c >= counterCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[c])
}

// Snapshot returns all counters keyed by name.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, counterCount)
	for c := Counter(0); c < counterCount; c++ {
		out[c.Name()] = m.Get(c)
	}
	return out
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	for c := Counter(0); c < counterCount; c++ {
		atomic.StoreUint64(&m.counters[c], 0)
	}
}

// LogSummary emits one structured log line with every counter.
func (m *Metrics) LogSummary() {
	snap := m.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	ev := logging.Info()
	for _, name := range names {
		ev = ev.Uint64(name, snap[name])
	}
	ev.Msg("server metrics")
}

// Default is the process-wide metrics set.
var Default = New()

// Inc bumps a counter on the default set.
func Inc(c Counter) { Default.Inc(c) }

// Add bumps a counter on the default set by n.
func Add(c Counter, n uint64) { Default.Add(c, n) }

// Get reads a counter from the default set.
func Get(c Counter) uint64 { return Default.Get(c) }

// Snapshot captures the default set.
func Snapshot() map[string]uint64 { return Default.Snapshot() }

// Reset zeroes the default set.
func Reset() { Default.Reset() }
