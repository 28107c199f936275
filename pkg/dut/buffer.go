package dut

import "bytes"

// lineBuffer holds bytes read from the device that have not yet been resolved
// into a complete line.
//
// lineBuffer.append(data) -- append raw bytes as they arrive
// lineBuffer.popLine()    -- remove and return the oldest complete line
// lineBuffer.flush(n)     -- remove and return up to n bytes regardless of terminators
//
// It is owned by a single Reader and is not safe for concurrent use.
type lineBuffer struct {
	data []byte
}

// append adds data to the end of the buffer
func (b *lineBuffer) append(data []byte) {
	b.data = append(b.data, data...)
}

// popLine returns the oldest complete line without its terminator.
// "\n" terminates a line; one "\r" directly before it is dropped as well.
func (b *lineBuffer) popLine() ([]byte, bool) {
	i := bytes.IndexByte(b.data, '\n')
	if i < 0 {
		return nil, false
	}

	end := i
	if end > 0 && b.data[end-1] == '\r' {
		end--
	}

	line := make([]byte, end)
	copy(line, b.data[:end])
	b.consume(i + 1)

	return line, true
}

// flush removes and returns up to n bytes
func (b *lineBuffer) flush(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	out := make([]byte, n)
	copy(out, b.data[:n])
	b.consume(n)
	return out
}

func (b *lineBuffer) consume(n int) {
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	// Compact so the backing array does not grow without bound on a long-lived stream
	remaining := copy(b.data, b.data[n:])
	b.data = b.data[:remaining]
}

// len returns the number of unresolved bytes
func (b *lineBuffer) len() int {
	return len(b.data)
}

// reset discards all unresolved bytes
func (b *lineBuffer) reset() {
	b.data = b.data[:0]
}
