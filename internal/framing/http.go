package framing

import (
	"strconv"
	"strings"

	"github.com/toolgate/toolgate/internal/buffer"
)

// maxDelimiterLen bounds how far a header terminator can straddle a chunk
// boundary, so the scan cursor only ever backs up this far minus one.
const maxDelimiterLen = 4

// HTTPFramer extracts one full HTTP request: it scans for the header/body
// delimiter, reads Content-Length, then waits for the complete body. The
// scan resumes where the previous call stopped instead of re-walking the
// whole buffer on every read.
type HTTPFramer struct {
	scanFrom   int
	bodyStart  int
	contentLen int
}

// NewHTTPFramer returns a framer for one-shot HTTP connections.
func NewHTTPFramer() *HTTPFramer {
	return &HTTPFramer{bodyStart: -1}
}

// TryExtract implements Framer. The returned message is the raw request
// text, headers and body, ready for ParseRequest.
func (f *HTTPFramer) TryExtract(buf *buffer.Dynamic) (string, bool) {
	data := buf.Bytes()

	if f.bodyStart < 0 {
		from := f.scanFrom - (maxDelimiterLen - 1)
		if from < 0 {
			from = 0
		}
		start, ok := findBodyStart(data, from)
		if !ok {
			f.scanFrom = len(data)
			return "", false
		}
		f.bodyStart = start
		f.contentLen = parseContentLength(string(data[:start]))
	}

	if buf.Len() < f.bodyStart+f.contentLen {
		return "", false
	}

	raw := buf.ExtractPrefix(f.bodyStart + f.contentLen)
	f.scanFrom, f.bodyStart, f.contentLen = 0, -1, 0
	return string(raw), true
}

// findBodyStart locates the end of the header block in data[from:] and
// returns the body offset. CRLFCRLF is tried before the degraded bare LFLF.
func findBodyStart(data []byte, from int) (int, bool) {
	for i := from; i <= len(data)-4; i++ {
		if data[i] == '\r' && data[i+1] == '\n' && data[i+2] == '\r' && data[i+3] == '\n' {
			return i + 4, true
		}
	}
	for i := from; i <= len(data)-2; i++ {
		if data[i] == '\n' && data[i+1] == '\n' {
			return i + 2, true
		}
	}
	return 0, false
}

// parseContentLength returns the value of the first Content-Length header in
// the given header block, or 0 when absent or unparseable. Header names match
// case-insensitively.
func parseContentLength(headers string) int {
	for _, line := range headerLines(headers) {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		if !strings.EqualFold(key, "Content-Length") {
			continue
		}
		value := strings.TrimSpace(line[colon+1:])
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Request is one parsed HTTP request.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    string
}

// ParseRequest splits raw request text into method, path, headers and body.
// The body is everything after the header terminator, verbatim; there is no
// chunked-transfer decoding.
func ParseRequest(raw string) (*Request, error) {
	headerEnd := strings.Index(raw, "\r\n\r\n")
	delimLen := 4
	if headerEnd < 0 {
		headerEnd = strings.Index(raw, "\n\n")
		delimLen = 2
	}
	if headerEnd < 0 {
		return nil, ErrNoHeaderTerminator
	}

	lines := headerLines(raw[:headerEnd])
	if len(lines) == 0 {
		return nil, ErrEmptyHeader
	}

	parts := strings.Fields(lines[0])
	if len(parts) < 2 {
		return nil, ErrBadRequestLine
	}

	req := &Request{
		Method:  strings.ToUpper(parts[0]),
		Path:    parts[1],
		Headers: make(map[string]string),
		Body:    raw[headerEnd+delimLen:],
	}

	for _, line := range lines[1:] {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		req.Headers[key] = value
	}

	return req, nil
}

// Header returns the named request header, matching case-insensitively.
func (r *Request) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// headerLines splits a header block into lines, tolerating both CRLF and
// bare LF, dropping empty lines.
func headerLines(block string) []string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
