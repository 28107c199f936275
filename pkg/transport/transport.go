// Package transport opens the byte stream of a device under test from a target string.
//
// Supported targets:
//
//	serial:/dev/ttyUSB0   a serial console (a bare /dev/... path means the same)
//	tcp:host:port         a console exported over TCP (ser2net, QEMU -serial tcp:...)
//	exec:command          a local process run under a pty (QEMU, a host-side simulator)
//	file:path             a captured log, replayed once
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/gofrs/flock"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/internal/serialio"
	"golang.org/x/sys/unix"
)

// Scheme selects how a target is opened.
type Scheme string

const (
	SchemeSerial Scheme = "serial"
	SchemeTCP    Scheme = "tcp"
	SchemeExec   Scheme = "exec"
	SchemeFile   Scheme = "file"
)

var (
	// ErrUnknownScheme is returned for targets whose scheme is not supported.
	ErrUnknownScheme = errors.New("unknown target scheme")
	// ErrPortBusy is returned when another process holds the serial port lock.
	ErrPortBusy = errors.New("serial port is in use by another process")
)

// Options configures how targets are opened.
type Options struct {
	Baud          int           `default:"115200"`
	LockDir       string        // directory for serial port lock files; "" = os.TempDir()
	ReadCap       int           `default:"65536"`
	PollTimeoutMs int           `default:"50"`
	DialTimeout   time.Duration `default:"5s"`
}

// DefaultOptions returns Options with all defaults applied.
func DefaultOptions() Options {
	opts := Options{}
	defaults.SetDefaults(&opts)
	return opts
}

// Target is a parsed target string.
type Target struct {
	Scheme  Scheme
	Address string
}

// String returns the canonical target form.
func (t Target) String() string {
	return string(t.Scheme) + ":" + t.Address
}

// ParseTarget splits a target string into scheme and address.
func ParseTarget(s string) (Target, error) {
	if strings.HasPrefix(s, "/dev/") {
		return Target{Scheme: SchemeSerial, Address: s}, nil
	}

	scheme, addr, ok := strings.Cut(s, ":")
	if !ok || addr == "" {
		return Target{}, fmt.Errorf("invalid target %q: expected <scheme>:<address>", s)
	}

	switch Scheme(scheme) {
	case SchemeSerial, SchemeTCP, SchemeExec, SchemeFile:
		return Target{Scheme: Scheme(scheme), Address: addr}, nil
	default:
		return Target{}, fmt.Errorf("%w %q in %q (supported: serial, tcp, exec, file)", ErrUnknownScheme, scheme, s)
	}
}

// Stream is an open device byte stream.
type Stream interface {
	io.ReadCloser
	Name() string
}

// Open parses target and opens its stream. The returned stream is owned by the
// caller, usually handed to dut.NewSession.
func Open(ctx context.Context, target string, opts Options, logger *logrus.Logger) (Stream, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	logger.WithFields(logrus.Fields{
		"scheme":  t.Scheme,
		"address": t.Address,
	}).Debug("Opening target")

	switch t.Scheme {
	case SchemeSerial:
		return openSerial(t, opts, logger)
	case SchemeTCP:
		return openTCP(ctx, t, opts)
	case SchemeExec:
		return openExec(t, opts, logger)
	default:
		return openFile(t)
	}
}

type serialStream struct {
	*serialio.Port
	lock *flock.Flock
}

func openSerial(t Target, opts Options, logger *logrus.Logger) (Stream, error) {
	lockDir := opts.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	lockPath := filepath.Join(lockDir, "dutexpect-"+strings.ReplaceAll(strings.TrimPrefix(t.Address, "/"), "/", "_")+".lock")

	lock := flock.New(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock on %s: %w", lockPath, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s (lock %s)", ErrPortBusy, t.Address, lockPath)
	}

	port, err := serialio.Open(t.Address, serialio.Options{
		Baud:          opts.Baud,
		ReadCap:       opts.ReadCap,
		PollTimeoutMs: opts.PollTimeoutMs,
		Logger:        logger,
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &serialStream{Port: port, lock: lock}, nil
}

func (s *serialStream) Close() error {
	err := s.Port.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = fmt.Errorf("failed to release lock on %s: %w", s.lock.Path(), unlockErr)
	}
	return err
}

type tcpStream struct {
	net.Conn
	name string
}

func (s *tcpStream) Name() string { return s.name }

func openTCP(ctx context.Context, t Target, opts Options) (Stream, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.Address, err)
	}
	return &tcpStream{Conn: conn, name: t.String()}, nil
}

type execStream struct {
	*serialio.Port
	cmd  *exec.Cmd
	name string
}

func (s *execStream) Name() string { return s.name }

func openExec(t Target, opts Options, logger *logrus.Logger) (Stream, error) {
	cmd := exec.Command("/bin/sh", "-c", t.Address)
	// Own session and process group, so Close reaches everything the shell started.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}
	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", t.Address, err)
	}

	port := serialio.Wrap(master, serialio.Options{
		ReadCap:       opts.ReadCap,
		PollTimeoutMs: opts.PollTimeoutMs,
		Logger:        logger,
	})
	return &execStream{Port: port, cmd: cmd, name: t.String()}, nil
}

// Close kills the command's process group if it is still running and releases the pty.
func (s *execStream) Close() error {
	err := s.Port.Close()
	if killErr := unix.Kill(-s.cmd.Process.Pid, unix.SIGKILL); killErr != nil && !errors.Is(killErr, unix.ESRCH) {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}

type fileStream struct {
	*os.File
}

func (s *fileStream) Name() string { return string(SchemeFile) + ":" + s.File.Name() }

func openFile(t Target) (Stream, error) {
	f, err := os.Open(t.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &fileStream{File: f}, nil
}
