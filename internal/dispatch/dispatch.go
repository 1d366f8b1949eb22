// Package dispatch turns framed protocol messages into responses. It speaks
// both wire dialects: the legacy line protocol and JSON-RPC over HTTP.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/toolgate/toolgate/internal/logging"
)

// Executor runs a named tool and returns its serialized result. The result
// is expected to be a JSON document; a Go error means the tool could not be
// run at all.
type Executor interface {
	Execute(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, name string, params json.RawMessage) (json.RawMessage, error) {
	return f(ctx, name, params)
}

// encode serializes an envelope. These envelopes are plain data and should
// never fail to marshal; if one does, the error envelope is the fallback.
func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("encode response envelope")
		return `{"error":"internal error"}`
	}
	return string(data)
}
