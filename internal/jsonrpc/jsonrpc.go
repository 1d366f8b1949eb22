// Package jsonrpc defines JSON-RPC 2.0 envelopes as they appear on the wire.
package jsonrpc

import "encoding/json"

// Version is the JSON-RPC protocol version emitted on every response.
const Version = "2.0"

// Standard error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is an incoming JSON-RPC request. ID and Method stay raw so the
// dispatcher can tell an absent field from a malformed one: a request
// without an ID is a notification, and a non-string method is rejected
// rather than treated as missing.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  json.RawMessage `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id. A literal null
// id is still an id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// HasMethod reports whether a method field was present at all.
func (r *Request) HasMethod() bool {
	return len(r.Method) != 0
}

// MethodName returns the method as a string, and false when the field is
// present but not a JSON string.
func (r *Request) MethodName() (string, bool) {
	var name string
	if err := json.Unmarshal(r.Method, &name); err != nil {
		return "", false
	}
	return name, true
}

// Response is an outgoing JSON-RPC response. The id field is always emitted;
// a nil ID marshals as null, matching responses to requests whose id could
// not be read.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is the error member of a failed response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewResponse builds a success response for the given request id.
func NewResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: Version, ID: id, Result: result}
}

// NewError builds an error response for the given request id.
func NewError(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// Encode serializes a response to its wire form.
func Encode(resp Response) string {
	out, err := json.Marshal(resp)
	if err != nil {
		// Responses are built from marshalable parts; this is unreachable
		// for any input the dispatcher produces.
		fallback, _ := json.Marshal(NewError(resp.ID, CodeInternalError, err.Error()))
		return string(fallback)
	}
	return string(out)
}
