package testutils

import (
	"io"
	"strings"
	"sync"
	"time"
)

type streamItem struct {
	data  []byte
	delay time.Duration
	end   bool
}

// FakeStream is a scripted device byte stream. Chunks are delivered in order,
// each as a separate read, so tests control exactly where lines are split.
// A stream that is never ended behaves like a silent, hung device.
type FakeStream struct {
	name  string
	pr    *io.PipeReader
	pw    *io.PipeWriter
	queue chan streamItem
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// NewFakeStream creates a stream labelled name and starts its writer goroutine.
func NewFakeStream(name string) *FakeStream {
	pr, pw := io.Pipe()
	s := &FakeStream{
		name:  name,
		pr:    pr,
		pw:    pw,
		queue: make(chan streamItem, 1024),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *FakeStream) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case it := <-s.queue:
			if it.delay > 0 {
				select {
				case <-time.After(it.delay):
				case <-s.done:
					return
				}
			}
			if it.end {
				_ = s.pw.Close()
				return
			}
			if _, err := s.pw.Write(it.data); err != nil {
				return
			}
		}
	}
}

func (s *FakeStream) push(it streamItem) *FakeStream {
	select {
	case s.queue <- it:
	case <-s.done:
	}
	return s
}

// Emit queues raw chunks, each delivered by one read.
func (s *FakeStream) Emit(chunks ...string) *FakeStream {
	for _, c := range chunks {
		s.push(streamItem{data: []byte(c)})
	}
	return s
}

// EmitBytes queues one raw chunk, for byte sequences that are not valid UTF-8.
func (s *FakeStream) EmitBytes(b []byte) *FakeStream {
	return s.push(streamItem{data: append([]byte(nil), b...)})
}

// EmitLines queues lines terminated with "\r\n", the way device consoles print them,
// as a single chunk.
func (s *FakeStream) EmitLines(lines ...string) *FakeStream {
	if len(lines) == 0 {
		return s
	}
	return s.Emit(strings.Join(lines, "\r\n") + "\r\n")
}

// After queues chunk for delivery d after the previous item was read.
func (s *FakeStream) After(d time.Duration, chunk string) *FakeStream {
	return s.push(streamItem{data: []byte(chunk), delay: d})
}

// End closes the device side once everything queued so far has been read.
func (s *FakeStream) End() *FakeStream {
	return s.push(streamItem{end: true})
}

// Read implements io.Reader.
func (s *FakeStream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close implements io.Closer and unblocks any pending Read.
func (s *FakeStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		_ = s.pr.Close()
	})
	return nil
}

// Closed reports whether Close was called.
func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Name returns the stream label.
func (s *FakeStream) Name() string {
	return s.name
}
