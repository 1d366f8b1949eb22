// Package buffer implements the growable byte accumulator connections read into.
package buffer

// Dynamic accumulates stream bytes until complete messages can be taken off
// the front. It never shrinks on its own; size enforcement belongs to the
// caller. A Dynamic is owned by exactly one connection goroutine.
type Dynamic struct {
	data []byte
}

// New returns an empty buffer.
func New() *Dynamic {
	return &Dynamic{}
}

// Append adds p to the end of the buffer. Growth is unconditional.
func (b *Dynamic) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len returns the number of buffered bytes.
func (b *Dynamic) Len() int {
	return len(b.data)
}

// Bytes returns a view of the buffered bytes. The slice is only valid until
// the next mutation.
func (b *Dynamic) Bytes() []byte {
	return b.data
}

// ExtractLines removes every fully newline-terminated line from the front of
// the buffer and returns them in arrival order, terminators stripped. A
// trailing carriage return is stripped from each line. Bytes after the last
// terminator stay buffered for future appends.
func (b *Dynamic) ExtractLines() []string {
	var lines []string
	start := 0
	for i := 0; i < len(b.data); i++ {
		if b.data[i] != '\n' {
			continue
		}
		end := i
		if end > start && b.data[end-1] == '\r' {
			end--
		}
		lines = append(lines, string(b.data[start:end]))
		start = i + 1
	}
	if start > 0 {
		b.data = append(b.data[:0], b.data[start:]...)
	}
	return lines
}

// ExtractPrefix removes and returns the first n bytes. n larger than the
// buffer is truncated to the buffer size.
func (b *Dynamic) ExtractPrefix(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	b.data = append(b.data[:0], b.data[n:]...)
	return out
}

// Reset drops all buffered bytes.
func (b *Dynamic) Reset() {
	b.data = b.data[:0]
}
