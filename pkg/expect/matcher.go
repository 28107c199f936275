package expect

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/dut"
)

// Match is the outcome of a satisfied expectation.
type Match struct {
	Expectation Expectation
	Line        string
	Submatches  []string // pattern expectations only: full match followed by groups
	Skipped     int      // non-matching lines discarded before the match
	Elapsed     time.Duration
}

// Await reads lines from src until one satisfies exp.
//
// The budget is exp.Timeout() when set, otherwise timeout; a non-positive budget
// waits without limit. Lines that do not match are discarded and cannot satisfy a
// later expectation.
//
// On failure the returned error is a *dut.Error of kind timeout, stream_closed or
// cancelled, carrying the number of lines seen and the session tail.
func Await(ctx context.Context, src dut.LineSource, exp Expectation, timeout time.Duration) (*Match, error) {
	if exp.timeout > 0 {
		timeout = exp.timeout
	}

	logger := src.Logger().WithFields(logrus.Fields{
		"device":      src.Name(),
		"expectation": exp.String(),
		"timeout":     timeout,
	})
	logger.Debug("Awaiting expectation")

	start := time.Now()
	deadline := src.Deadline(timeout)
	skipped := 0

	for {
		line, err := src.NextLine(ctx, deadline)
		if err != nil {
			err = src.Annotate(err, exp.String(), skipped)
			logger.WithFields(logrus.Fields{
				"lines_seen": skipped,
				"elapsed":    time.Since(start),
			}).WithError(err).Debug("Expectation not met")
			return nil, err
		}

		if ok, subs := exp.Test(line); ok {
			m := &Match{
				Expectation: exp,
				Line:        line,
				Submatches:  subs,
				Skipped:     skipped,
				Elapsed:     time.Since(start),
			}
			logger.WithFields(logrus.Fields{
				"skipped": skipped,
				"elapsed": m.Elapsed,
			}).Debug("Expectation matched")
			return m, nil
		}
		skipped++
	}
}

// AwaitAll waits until every expectation in exps has matched some line, in any order,
// within one shared timeout. Each line satisfies at most one expectation: the first
// still-pending one, in slice order, that it matches. Per-expectation timeouts are not
// consulted.
//
// Matches are returned in the order of exps. On failure the *dut.Error names the
// expectations that were still pending.
func AwaitAll(ctx context.Context, src dut.LineSource, exps []Expectation, timeout time.Duration) ([]*Match, error) {
	matches := make([]*Match, len(exps))
	pending := len(exps)

	logger := src.Logger().WithFields(logrus.Fields{
		"device":       src.Name(),
		"expectations": len(exps),
		"timeout":      timeout,
	})
	logger.Debug("Awaiting unordered expectations")

	start := time.Now()
	deadline := src.Deadline(timeout)
	seen := 0

	for pending > 0 {
		line, err := src.NextLine(ctx, deadline)
		if err != nil {
			return matches, src.Annotate(err, describePending(exps, matches), seen)
		}
		seen++

		for i, exp := range exps {
			if matches[i] != nil {
				continue
			}
			if ok, subs := exp.Test(line); ok {
				matches[i] = &Match{
					Expectation: exp,
					Line:        line,
					Submatches:  subs,
					Skipped:     seen - 1,
					Elapsed:     time.Since(start),
				}
				pending--
				break
			}
		}
	}

	logger.WithFields(logrus.Fields{
		"lines_seen": seen,
		"elapsed":    time.Since(start),
	}).Debug("Unordered expectations matched")
	return matches, nil
}

func describePending(exps []Expectation, matches []*Match) string {
	var missing []string
	for i, exp := range exps {
		if matches[i] == nil {
			missing = append(missing, exp.String())
		}
	}
	return fmt.Sprintf("all of [%s]", strings.Join(missing, ", "))
}
