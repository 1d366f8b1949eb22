// Package framing turns accumulated stream bytes into discrete protocol
// messages. Two strategies share one contract: newline-delimited JSON lines
// and single HTTP requests delimited by a header terminator plus
// Content-Length.
package framing

import (
	"errors"

	"github.com/toolgate/toolgate/internal/buffer"
)

// Framer extracts the next complete message from a connection buffer.
// Implementations keep per-connection cursor state and are not safe for
// concurrent use.
type Framer interface {
	// TryExtract returns the next complete message and true, or ("", false)
	// when more bytes are needed. Extracted bytes are consumed from buf.
	TryExtract(buf *buffer.Dynamic) (string, bool)
}

// Request parsing failures. The connection is aborted after reporting them.
var (
	ErrNoHeaderTerminator = errors.New("missing header terminator")
	ErrEmptyHeader        = errors.New("empty header block")
	ErrBadRequestLine     = errors.New("malformed request line")
)
