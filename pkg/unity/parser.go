package unity

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/dut"
)

// State is the parser position within the result block.
type State int

const (
	Scanning   State = iota // waiting for the first record or the summary line
	Collecting              // at least one record collected
	Done                    // summary line seen
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Collecting:
		return "collecting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Parser is the state machine that assembles a Summary from device lines.
// Lines that are neither records nor the summary are ignored, since the target
// may interleave unrelated log output.
type Parser struct {
	state   State
	summary Summary
}

// NewParser returns a parser in the Scanning state.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes one line and returns the resulting state. Lines fed after Done are ignored.
func (p *Parser) Feed(line string) State {
	if p.state == Done {
		return p.state
	}

	if rec, ok := ParseRecord(line); ok {
		p.summary.Records = append(p.summary.Records, rec)
		p.state = Collecting
		return p.state
	}

	if c, ok := parseSummary(line); ok {
		p.summary.Tests = c.tests
		p.summary.Failures = c.failures
		p.summary.Ignored = c.ignored
		p.summary.Done = true
		p.state = Done
	}
	return p.state
}

// State returns the current parser state.
func (p *Parser) State() State {
	return p.state
}

// Summary returns a copy of what has been collected so far.
func (p *Parser) Summary() *Summary {
	s := p.summary
	s.Records = append([]Record(nil), p.summary.Records...)
	return &s
}

// Result returns the summary and, once Done, an error satisfying
// errors.Is(err, dut.ErrParse) if the declared counts disagree with the records.
func (p *Parser) Result() (*Summary, error) {
	s := p.Summary()
	if p.state != Done {
		return s, nil
	}
	if err := s.check(); err != nil {
		return s, &dut.Error{Kind: dut.KindParse, Op: "unity result", Err: err}
	}
	return s, nil
}

// Await reads lines from src until a complete Unity block has been parsed.
//
// Return values:
//   - (summary, nil): the block is complete and consistent; check summary.Passed()
//     or summary.Err() for the verdict
//   - (summary, ErrParse): the summary counts disagree with the records seen
//   - (partial, ErrTimeout / ErrStreamClosed / ErrCancelled): the summary line never
//     arrived; partial holds the records collected so far
//
// A non-positive timeout waits without limit.
func Await(ctx context.Context, src dut.LineSource, timeout time.Duration) (*Summary, error) {
	logger := src.Logger().WithFields(logrus.Fields{
		"device":  src.Name(),
		"timeout": timeout,
	})
	logger.Debug("Awaiting unity result")

	p := NewParser()
	deadline := src.Deadline(timeout)
	seen := 0

	for p.State() != Done {
		line, err := src.NextLine(ctx, deadline)
		if err != nil {
			partial := p.Summary()
			logger.WithFields(logrus.Fields{
				"state":   p.State(),
				"records": len(partial.Records),
			}).WithError(err).Debug("Unity result not received")
			return partial, src.Annotate(err, "unity result", seen)
		}
		seen++
		p.Feed(line)
	}

	summary, err := p.Result()
	if err != nil {
		var derr *dut.Error
		if errors.As(err, &derr) {
			err = src.Annotate(err, derr.Op, seen)
		}
		logger.WithError(err).Warn("Unity result is inconsistent")
		return summary, err
	}

	logger.WithFields(logrus.Fields{
		"tests":    summary.Tests,
		"failures": summary.Failures,
		"ignored":  summary.Ignored,
	}).Debug("Unity result received")
	return summary, nil
}
