// Package expect waits for expected lines on a device session.
//
// An Expectation is either an exact line or a regular expression searched anywhere
// in a line. Await scans lines in arrival order and discards the ones that do not
// match, so expectations awaited one after another must appear in that order.
package expect

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
)

// Kind is the type of test applied to each line.
type Kind string

const (
	KindExact   Kind = "exact-line"
	KindPattern Kind = "pattern"
)

// MatchOptions control how an exact-line expectation compares text.
// The defaults compare the whole line byte for byte after the line terminator is stripped.
type MatchOptions struct {
	// TrimSpace ignores leading and trailing whitespace on both sides.
	TrimSpace bool `default:"false" yaml:"trim_space"`
	// Substring accepts a line that contains the literal anywhere, which suits
	// log lines carrying a prefix such as "I (312) example: ".
	Substring bool `default:"false" yaml:"substring"`
	// IgnoreCase compares with Unicode case folding.
	IgnoreCase bool `default:"false" yaml:"ignore_case"`
}

// DefaultMatchOptions returns the byte-exact whole-line options.
func DefaultMatchOptions() MatchOptions {
	opts := MatchOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// Expectation is an immutable rule describing text that must appear on the device output.
type Expectation struct {
	kind    Kind
	text    string
	pattern *regexp.Regexp
	timeout time.Duration
	match   MatchOptions
}

// Option configures an Expectation at construction.
type Option func(*Expectation)

// WithTimeout overrides the caller's budget for this expectation.
func WithTimeout(d time.Duration) Option {
	return func(e *Expectation) { e.timeout = d }
}

// WithMatchOptions sets how exact-line text is compared. It has no effect on patterns.
func WithMatchOptions(opts MatchOptions) Option {
	return func(e *Expectation) { e.match = opts }
}

// Exact expects a line equal to text.
func Exact(text string, opts ...Option) Expectation {
	e := Expectation{kind: KindExact, text: text, match: DefaultMatchOptions()}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Pattern expects a line in which expr matches anywhere.
func Pattern(expr string, opts ...Option) (Expectation, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Expectation{}, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	e := Expectation{kind: KindPattern, text: expr, pattern: re}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// MustPattern is Pattern that panics on an invalid expression.
func MustPattern(expr string, opts ...Option) Expectation {
	e, err := Pattern(expr, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Kind returns the expectation kind.
func (e Expectation) Kind() Kind { return e.kind }

// Text returns the literal for exact-line expectations, or the expression source for patterns.
func (e Expectation) Text() string { return e.text }

// Timeout returns the override set with WithTimeout, or 0.
func (e Expectation) Timeout() time.Duration { return e.timeout }

// String describes the expectation for logs and error messages.
func (e Expectation) String() string {
	if e.kind == KindPattern {
		return fmt.Sprintf("pattern /%s/", e.text)
	}
	return fmt.Sprintf("exact %q", e.text)
}

// Test reports whether line satisfies the expectation and, for patterns,
// returns the first match and its submatches.
func (e Expectation) Test(line string) (bool, []string) {
	if e.kind == KindPattern {
		m := e.pattern.FindStringSubmatch(line)
		return m != nil, m
	}

	want, got := e.text, line
	if e.match.TrimSpace {
		want, got = strings.TrimSpace(want), strings.TrimSpace(got)
	}
	switch {
	case e.match.Substring && e.match.IgnoreCase:
		return strings.Contains(strings.ToLower(got), strings.ToLower(want)), nil
	case e.match.Substring:
		return strings.Contains(got, want), nil
	case e.match.IgnoreCase:
		return strings.EqualFold(got, want), nil
	default:
		return got == want, nil
	}
}
