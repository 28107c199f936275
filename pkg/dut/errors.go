package dut

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a wait on the device stream did not produce what was asked for.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindStreamClosed Kind = "stream_closed"
	KindParse        Kind = "parse_error"
	KindCancelled    Kind = "cancelled"
)

// Error is returned by every wait on a device session that ends without a result.
// It carries enough context to diagnose the failure without re-running the device.
type Error struct {
	Kind      Kind
	Op        string   // what was being waited for, e.g. `exact "Opening file"`
	LinesSeen int      // lines consumed by the failed wait
	Tail      []string // most recent lines seen on the session
	Err       error    // underlying cause, if any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		fmt.Fprintf(&b, " waiting for %s", e.Op)
	}
	if e.LinesSeen > 0 {
		fmt.Fprintf(&b, " (%d lines seen)", e.LinesSeen)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the underlying cause (e.g. context.Canceled or io.EOF)
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per Kind
var (
	ErrTimeout      = &Error{Kind: KindTimeout}
	ErrStreamClosed = &Error{Kind: KindStreamClosed}
	ErrParse        = &Error{Kind: KindParse}
	ErrCancelled    = &Error{Kind: KindCancelled}
)

// KindOf reports the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}

// annotate copies err (which must be a *Error) and attaches wait context.
// Non-*Error values are returned unchanged.
func annotate(err error, op string, seen int, tail []string) error {
	var derr *Error
	if !errors.As(err, &derr) {
		return err
	}
	out := *derr
	out.Op = op
	out.LinesSeen = seen
	out.Tail = tail
	return &out
}

// Annotate attaches the operation name, consumed line count and session tail to a
// wait error produced by Session.NextLine.
func (s *Session) Annotate(err error, op string, seen int) error {
	return annotate(err, op, seen, s.Tail())
}
