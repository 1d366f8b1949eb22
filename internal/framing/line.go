package framing

import "github.com/toolgate/toolgate/internal/buffer"

// LineFramer yields newline-terminated messages one at a time. A single
// append can complete several lines; extracted lines queue internally so
// every call still returns at most one message.
type LineFramer struct {
	pending []string
}

// NewLineFramer returns a framer for the line protocol.
func NewLineFramer() *LineFramer {
	return &LineFramer{}
}

// TryExtract implements Framer.
func (f *LineFramer) TryExtract(buf *buffer.Dynamic) (string, bool) {
	if len(f.pending) == 0 {
		f.pending = buf.ExtractLines()
	}
	if len(f.pending) == 0 {
		return "", false
	}
	msg := f.pending[0]
	f.pending = f.pending[1:]
	return msg, true
}
