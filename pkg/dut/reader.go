package dut

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/internal/groutine"
	xunicode "golang.org/x/text/encoding/unicode"
)

// ReaderOptions configures how raw device bytes are turned into lines.
// Zero values are replaced by the defaults in the struct tags (see DefaultReaderOptions).
type ReaderOptions struct {
	// PollInterval bounds how long the pump sleeps when a non-blocking stream reports EAGAIN.
	PollInterval time.Duration `default:"20ms"`
	// ReadChunk is the size of a single read from the stream.
	ReadChunk int `default:"4096"`
	// MaxLineBytes caps an unterminated run; longer runs are flushed as a line.
	MaxLineBytes int `default:"65536"`
	// StripEscapes removes ANSI escape sequences and C0 control bytes (except tab) from lines.
	StripEscapes bool `default:"false"`
}

// DefaultReaderOptions returns ReaderOptions with all defaults applied
func DefaultReaderOptions() ReaderOptions {
	opts := ReaderOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// readinessNotifier is implemented by non-blocking transports that can signal data arrival,
// so the pump can wait instead of polling.
type readinessNotifier interface {
	Ready() <-chan struct{}
}

// ReaderStats are counters describing what the reader has done so far.
type ReaderStats struct {
	BytesRead         uint64
	LinesDelivered    uint64
	OverlongFlushes   uint64
	DiscardedPartials uint64
}

// ansiEscape matches CSI sequences (colour codes emitted by ESP-IDF logging) and
// two-byte ESC sequences.
var ansiEscape = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[ -/]*[@-~]|[@-Z\\-_])`)

// noopLogger is a shared logger instance that discards all output.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

type chunk struct {
	data []byte
	err  error
}

// Reader turns a raw, possibly chunked byte stream into an ordered sequence of
// decoded text lines.
//
// A single background pump goroutine performs reads, so at most one read is outstanding
// against the stream. NextLine must be called from one goroutine at a time.
type Reader struct {
	src    io.ReadCloser
	opts   ReaderOptions
	logger *logrus.Logger

	buf       lineBuffer
	chunks    chan chunk
	closedErr error // terminal stream error, set once the pump reports one

	startOnce sync.Once
	started   atomic.Bool
	pumpDone  chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	// Counters are read by Stats from any goroutine.
	bytesRead         atomic.Uint64
	linesDelivered    atomic.Uint64
	overlongFlushes   atomic.Uint64
	discardedPartials atomic.Uint64
}

// NewReader wraps src. The reader takes ownership of src and closes it on Close.
// If logger is nil, a no-op logger is used.
func NewReader(src io.ReadCloser, opts ReaderOptions, logger *logrus.Logger) *Reader {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = noopLogger
	}
	return &Reader{
		src:      src,
		opts:     opts,
		logger:   logger,
		chunks:   make(chan chunk, 1),
		pumpDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// NextLine returns the next complete line, in arrival order, with its terminator stripped.
//
// Return values:
//   - (line, nil): a complete line was available or arrived before deadline
//   - ("", ErrTimeout): no complete line before deadline; buffered partial bytes are kept
//   - ("", ErrStreamClosed): the stream ended; a trailing partial fragment is discarded
//   - ("", ErrCancelled): ctx is done; the stream is closed to unblock the pending read
//
// A zero deadline waits without limit.
func (r *Reader) NextLine(ctx context.Context, deadline time.Time) (string, error) {
	r.start()

	var timeout <-chan time.Time
	for {
		if line, ok := r.buf.popLine(); ok {
			return r.deliver(line), nil
		}

		if r.buf.len() >= r.opts.MaxLineBytes {
			r.overlongFlushes.Add(1)
			r.logger.WithField("bytes", r.buf.len()).Warn("Unterminated device output exceeds max line length, flushing")
			return r.deliver(r.buf.flush(r.opts.MaxLineBytes)), nil
		}

		if r.closedErr != nil {
			if r.buf.len() > 0 {
				r.discardedPartials.Add(1)
				r.logger.WithField("bytes", r.buf.len()).Debug("Discarding partial line at end of stream")
				r.buf.reset()
			}
			return "", r.closedErr
		}

		if timeout == nil && !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				// Deadline already passed: take whatever is ready, never block
				select {
				case c := <-r.chunks:
					r.accept(c)
					continue
				default:
					return "", &Error{Kind: KindTimeout}
				}
			}
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case c := <-r.chunks:
			r.accept(c)
		case <-timeout:
			return "", &Error{Kind: KindTimeout}
		case <-ctx.Done():
			_ = r.Close()
			return "", &Error{Kind: KindCancelled, Err: ctx.Err()}
		case <-r.done:
			r.closedErr = &Error{Kind: KindStreamClosed, Err: errReaderClosed}
		}
	}
}

var errReaderClosed = errors.New("reader closed")

// Close stops the pump and closes the underlying stream. It is safe to call more than once.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.done)
		err = r.src.Close()

		if !r.started.Load() {
			return
		}

		// Closing the stream unblocks the pending read; give the pump a bounded time to notice
		select {
		case <-r.pumpDone:
		case <-time.After(time.Second):
			r.logger.Warn("Line pump did not exit within 1s after close; the stream read is still blocked")
		}
	})
	return err
}

// Stats returns a snapshot of reader counters
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		BytesRead:         r.bytesRead.Load(),
		LinesDelivered:    r.linesDelivered.Load(),
		OverlongFlushes:   r.overlongFlushes.Load(),
		DiscardedPartials: r.discardedPartials.Load(),
	}
}

func (r *Reader) start() {
	r.startOnce.Do(func() {
		select {
		case <-r.done:
			// Closed before the first read; nothing to pump
			return
		default:
		}
		r.started.Store(true)
		groutine.Go(context.Background(), "dut-line-pump", func(ctx context.Context) {
			defer r.logger.Debugf("%s: exiting", groutine.Name(ctx))
			r.pump()
		})
	})
}

func (r *Reader) accept(c chunk) {
	if len(c.data) > 0 {
		r.buf.append(c.data)
	}
	if c.err != nil && r.closedErr == nil {
		r.logger.WithField("cause", c.err).Debug("Device stream ended")
		r.closedErr = &Error{Kind: KindStreamClosed, Err: c.err}
	}
}

func (r *Reader) deliver(raw []byte) string {
	r.linesDelivered.Add(1)
	line := decode(raw)
	if r.opts.StripEscapes {
		line = stripEscapes(line)
	}
	return line
}

// pump reads from the stream and hands chunks to NextLine until the stream fails or
// the reader is closed.
func (r *Reader) pump() {
	defer close(r.pumpDone)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("line pump panicked (recovered): %v", rec)
		}
	}()

	var ready <-chan struct{}
	if n, ok := r.src.(readinessNotifier); ok {
		ready = n.Ready()
	}

	buf := make([]byte, r.opts.ReadChunk)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			r.bytesRead.Add(uint64(n))
			data := make([]byte, n)
			copy(data, buf[:n])
			if !r.send(chunk{data: data}) {
				return
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
			if !r.waitReadable(ready) {
				return
			}
		case errors.Is(err, syscall.EINTR):
			continue
		default:
			r.send(chunk{err: err})
			return
		}
	}
}

func (r *Reader) send(c chunk) bool {
	select {
	case r.chunks <- c:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reader) waitReadable(ready <-chan struct{}) bool {
	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ready:
		return true
	case <-timer.C:
		return true
	case <-r.done:
		return false
	}
}

// decode converts raw bytes to a string, replacing invalid UTF-8 with U+FFFD
func decode(raw []byte) string {
	out, err := xunicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�")
	}
	return string(out)
}

func stripEscapes(line string) string {
	line = ansiEscape.ReplaceAllString(line, "")
	return strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, line)
}
