// Package dut models one live connection to a booted device under test.
//
// A Session owns the device byte stream exclusively. It turns the stream into
// lines through a Reader, remembers the most recent lines for diagnostics, and
// optionally captures a transcript of everything the device printed.
//
//	s := dut.NewSession(stream, dut.WithName("esp32-0"), dut.WithLogger(logger))
//	defer s.Close()
//
//	line, err := s.NextLine(ctx, s.Deadline(5*time.Second))
//	switch {
//	case errors.Is(err, dut.ErrTimeout):
//	case errors.Is(err, dut.ErrStreamClosed):
//	}
//
// Sessions share no mutable state, so several devices can be driven in parallel,
// each from its own goroutine.
package dut

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultTailLines is how many recent lines a session keeps for failure context.
	DefaultTailLines = 20
)

// LineSource is the part of a Session that matchers depend on.
type LineSource interface {
	NextLine(ctx context.Context, deadline time.Time) (string, error)
	Deadline(timeout time.Duration) time.Time
	Annotate(err error, op string, seen int) error
	Logger() *logrus.Logger
	Name() string
}

var _ LineSource = (*Session)(nil)

// Session is one live connection to a device.
type Session struct {
	name       string
	reader     *Reader
	readerOpts ReaderOptions
	tail       *Tail
	transcript *Transcript
	logger     *logrus.Logger
	now        func() time.Time

	lines     int
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithName labels the session, typically with the device port or target name.
func WithName(name string) Option {
	return func(s *Session) { s.name = name }
}

// WithLogger sets the session logger. A nil logger keeps the no-op default.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReaderOptions configures line decoding.
func WithReaderOptions(opts ReaderOptions) Option {
	return func(s *Session) { s.readerOpts = opts }
}

// WithTailLines sets how many recent lines are kept for diagnostics.
func WithTailLines(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.tail = NewTail(n)
		}
	}
}

// WithTranscript captures every delivered line into t.
func WithTranscript(t *Transcript) Option {
	return func(s *Session) { s.transcript = t }
}

// WithClock overrides the clock used to derive deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSession creates a session that takes ownership of stream.
func NewSession(stream io.ReadCloser, opts ...Option) *Session {
	s := &Session{
		name:       "dut",
		readerOpts: DefaultReaderOptions(),
		tail:       NewTail(DefaultTailLines),
		logger:     noopLogger,
		now:        time.Now,
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reader = NewReader(stream, s.readerOpts, s.logger)
	return s
}

// Name returns the session label.
func (s *Session) Name() string {
	return s.name
}

// Logger returns the session logger.
func (s *Session) Logger() *logrus.Logger {
	return s.logger
}

// Deadline converts a relative timeout into an absolute deadline on the session clock.
// A non-positive timeout yields the zero time, meaning no deadline.
func (s *Session) Deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return s.now().Add(timeout)
}

// Now returns the current time on the session clock.
func (s *Session) Now() time.Time {
	return s.now()
}

// NextLine returns the next device line; see Reader.NextLine for the error contract.
// Every delivered line is recorded in the tail and, if configured, the transcript.
func (s *Session) NextLine(ctx context.Context, deadline time.Time) (string, error) {
	line, err := s.reader.NextLine(ctx, deadline)
	if err != nil {
		return "", err
	}

	s.lines++
	s.tail.Push(line)
	if s.transcript != nil {
		if terr := s.transcript.Add(s.now(), line); terr != nil {
			s.logger.WithError(terr).Warn("Failed to capture device line")
		}
	}
	s.logger.WithFields(logrus.Fields{
		"device": s.name,
		"line":   line,
	}).Trace("device line")

	return line, nil
}

// Tail returns the most recent lines, oldest first.
func (s *Session) Tail() []string {
	return s.tail.Lines()
}

// Transcript returns the capture attached with WithTranscript, or nil.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// LinesRead returns how many lines the session delivered.
func (s *Session) LinesRead() int {
	return s.lines
}

// Stats returns the reader counters.
func (s *Session) Stats() ReaderStats {
	return s.reader.Stats()
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Close closes the device stream. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.reader.Close()
		close(s.closed)

		st := s.reader.Stats()
		s.logger.WithFields(logrus.Fields{
			"device":             s.name,
			"lines":              st.LinesDelivered,
			"bytes":              st.BytesRead,
			"discarded_partials": st.DiscardedPartials,
			"overlong_flushes":   st.OverlongFlushes,
		}).Debug("Device session closed")
	})
	return s.closeErr
}
