// Package serialio reads a device console (a serial adapter or the master side
// of a pty) into a ring buffer from a background poll loop, and exposes it as a
// non-blocking io.ReadCloser.
//
//	port, err := serialio.Open("/dev/ttyUSB0", serialio.Options{Baud: 115200, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	buf := make([]byte, 4096)
//	n, err := port.Read(buf) // syscall.EAGAIN when nothing is buffered yet
//	<-port.Ready()           // fires when new bytes arrive or the line drops
//
// # Poll Timeout
//
// PollTimeoutMs bounds how long the loop sleeps in poll(2) before checking for
// shutdown, so it is also the worst-case Close latency. 50ms suits console
// traffic; lower it only when Close latency matters more than idle wakeups.
package serialio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/dutexpect/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Options configures a Port. Zero values take the defaults below.
type Options struct {
	Baud          int            `default:"115200"` // ignored for non-tty files
	ReadCap       int            `default:"65536"`  // ring buffer capacity in bytes
	PollTimeoutMs int            `default:"50"`
	Logger        *logrus.Logger // nil = no-op logger
}

// Stats are runtime counters of a Port.
type Stats struct {
	ReadQueueLen     int32
	ReadQueueCap     int32
	DroppedReadCount uint64 // bytes lost to ring buffer overflow
	ReadBytesTotal   uint64
}

var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Port is an open device console.
type Port struct {
	name     string
	fd       int
	closeFd  func() error
	oldState *term.State

	logger        *logrus.Logger
	pollTimeoutMs int
	readBuf       *ringbuffer.RingBuffer
	ready         chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	mu      sync.Mutex
	lastErr error // terminal read error, io.EOF on hangup

	closed      atomic.Bool
	droppedRead atomic.Uint64
	readBytes   atomic.Uint64
}

// Open opens a serial device by path, switches it to raw mode at opts.Baud
// and starts the read loop.
func Open(path string, opts Options) (*Port, error) {
	defaults.SetDefaults(&opts)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var oldState *term.State
	if term.IsTerminal(fd) {
		if oldState, err = term.MakeRaw(fd); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("failed to set %s to raw mode: %w", path, err)
		}
		if err := setBaud(fd, opts.Baud); err != nil {
			_ = term.Restore(fd, oldState)
			_ = unix.Close(fd)
			return nil, fmt.Errorf("failed to set %s to %d baud: %w", path, opts.Baud, err)
		}
	}

	return start(path, fd, func() error { return unix.Close(fd) }, oldState, opts), nil
}

// Wrap starts a read loop over an already open file, typically a pty master.
// The Port takes ownership of f and closes it on Close.
func Wrap(f *os.File, opts Options) *Port {
	defaults.SetDefaults(&opts)
	return start(f.Name(), int(f.Fd()), f.Close, nil, opts)
}

func start(name string, fd int, closeFd func() error, oldState *term.State, opts Options) *Port {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Port{
		name:          name,
		fd:            fd,
		closeFd:       closeFd,
		oldState:      oldState,
		logger:        logger,
		pollTimeoutMs: opts.PollTimeoutMs,
		readBuf:       ringbuffer.New(opts.ReadCap),
		ready:         make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		exited:        make(chan struct{}),
	}

	groutine.Go(ctx, "serial-read-loop", func(ctx context.Context) {
		p.readLoop()
	})
	return p
}

func (p *Port) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("readLoop panicked (recovered): %v", r)
			p.fail(fmt.Errorf("read loop panicked: %v", r))
		}
		close(p.exited)
		p.notify()
	}()

	pollFd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		nReady, err := unix.Poll(pollFd, p.pollTimeoutMs)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			p.logger.Warnf("readLoop poll error: %v", err)
			p.fail(err)
			return
		}
		if nReady == 0 {
			continue
		}

		n, err := unix.Read(p.fd, buf)
		if n > 0 {
			p.store(buf[:n])
		}

		switch {
		case err == nil && n == 0:
			p.logger.Debugf("readLoop exiting: %s hung up", p.name)
			p.fail(io.EOF)
			return
		case err == nil:
			continue
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK), errors.Is(err, syscall.EINTR):
			continue
		case errors.Is(err, syscall.EIO):
			// pty slave closed or USB adapter unplugged
			p.logger.Debugf("readLoop exiting: %s disconnected", p.name)
			p.fail(io.EOF)
			return
		case errors.Is(err, syscall.EBADF):
			p.logger.Debug("readLoop exiting: fd closed")
			p.fail(os.ErrClosed)
			return
		default:
			p.logger.Warnf("readLoop exiting on error: %v", err)
			p.fail(err)
			return
		}
	}
}

func (p *Port) store(data []byte) {
	written, err := p.readBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		p.logger.Warnf("readLoop Write error: %v", err)
		return
	}
	if written < len(data) {
		dropped := len(data) - written
		p.droppedRead.Add(uint64(dropped))
		p.logger.Warnf("Read buffer overflow: dropped %d bytes from %s (received %d, only buffered %d)",
			dropped, p.name, len(data), written)
	}
	p.readBytes.Add(uint64(written))
	if written > 0 {
		p.notify()
	}
}

func (p *Port) notify() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *Port) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr == nil {
		p.lastErr = err
	}
}

// Read copies buffered bytes into b without blocking.
//
// Return values:
//   - (n, nil) where n > 0: n bytes were buffered
//   - (0, syscall.EAGAIN): nothing buffered yet, wait on Ready
//   - (0, io.EOF): the device hung up and everything buffered has been read
//   - (0, os.ErrClosed): Close was called
func (p *Port) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	if n, err := p.tryRead(b); n > 0 || err != nil {
		return n, err
	}

	select {
	case <-p.exited:
		// the loop may have stored a final chunk before exiting
		if n, err := p.tryRead(b); n > 0 || err != nil {
			return n, err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.lastErr == nil {
			return 0, io.EOF
		}
		return 0, p.lastErr
	default:
		return 0, syscall.EAGAIN
	}
}

func (p *Port) tryRead(b []byte) (int, error) {
	n, err := p.readBuf.TryRead(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		p.logger.Warnf("Read TryRead error: %v", err)
		return 0, err
	}
	return n, nil
}

// Ready fires after new bytes were buffered and once more when the read loop exits.
func (p *Port) Ready() <-chan struct{} {
	return p.ready
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.name
}

// Stats returns instantaneous counters.
func (p *Port) Stats() Stats {
	return Stats{
		ReadQueueLen:     int32(p.readBuf.Length()),
		ReadQueueCap:     int32(p.readBuf.Capacity()),
		DroppedReadCount: p.droppedRead.Load(),
		ReadBytesTotal:   p.readBytes.Load(),
	}
}

// Close stops the read loop, restores the terminal state and closes the device.
// The loop notices shutdown within one poll timeout, so the fd is closed only
// after it is no longer in use.
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.cancel()
	<-p.exited

	if p.oldState != nil {
		if err := term.Restore(p.fd, p.oldState); err != nil {
			p.logger.Debugf("failed to restore terminal state of %s: %v", p.name, err)
		}
	}
	if err := p.closeFd(); err != nil {
		return fmt.Errorf("failed to close %s: %w", p.name, err)
	}
	return nil
}
