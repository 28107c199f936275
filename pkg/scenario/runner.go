// Package scenario runs ordered expectation pipelines against device sessions.
//
// A Scenario is a flat list of steps. The Runner executes them strictly in order,
// because the order of log lines is the evidence of program order on the target,
// stops at the first step that does not succeed, closes the session, and reports
// a single Outcome.
//
//	sc := &scenario.Scenario{
//	    Name: "jrnl_example_basic",
//	    Steps: []scenario.Step{
//	        scenario.Exact("Journaled FatFS mounted successfully."),
//	        scenario.Exact("Opening file"),
//	    },
//	}
//	outcome := scenario.NewRunner(logger, scenario.DefaultRunnerOptions()).Run(ctx, session, sc)
//	if err := outcome.Err(); err != nil {
//	    return err
//	}
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/expect"
	"github.com/srg/dutexpect/pkg/unity"
)

// Scenario is one ordered sequence of steps constituting a single test case.
type Scenario struct {
	Name    string
	Timeout time.Duration       // default budget per step; 0 uses the runner default
	Match   expect.MatchOptions // default literal comparison for exact steps
	Steps   []Step
}

// Validate checks that every step compiles.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, st := range sc.Steps {
		if _, err := st.expectations(sc.Match); err != nil {
			return &stepError{index: i, err: err}
		}
	}
	return nil
}

type stepError struct {
	index int
	err   error
}

func (e *stepError) Error() string { return fmt.Sprintf("step %d: %v", e.index, e.err) }
func (e *stepError) Unwrap() error { return e.err }

// Device is what the runner needs from a session: lines, diagnostics, and teardown.
type Device interface {
	dut.LineSource
	Tail() []string
	Close() error
}

var _ Device = (*dut.Session)(nil)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// DefaultTimeout is the per-step budget when neither the step nor the scenario sets one.
	DefaultTimeout time.Duration `default:"30s"`

	// OnStep, if set, is called before each step starts, from the goroutine running the scenario.
	OnStep func(index int, step Step)
}

// DefaultRunnerOptions returns RunnerOptions with all defaults applied
func DefaultRunnerOptions() RunnerOptions {
	opts := RunnerOptions{}
	defaults.SetDefaults(&opts)
	return opts
}

// Runner executes scenarios. It holds no per-run state and may be shared across goroutines.
type Runner struct {
	logger *logrus.Logger
	opts   RunnerOptions
}

// NewRunner creates a runner. If logger is nil, a logger writing to stderr at the default level is used.
func NewRunner(logger *logrus.Logger, opts RunnerOptions) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	defaults.SetDefaults(&opts)
	return &Runner{logger: logger, opts: opts}
}

// Run executes sc against dev and closes dev when done, whatever the result.
// There are no retries: a timeout or mismatch is reported, never masked.
func (r *Runner) Run(ctx context.Context, dev Device, sc *Scenario) *Outcome {
	defer func() {
		if err := dev.Close(); err != nil {
			r.logger.WithError(err).WithField("device", dev.Name()).Warn("Failed to close device session")
		}
	}()

	out := &Outcome{
		RunID:      uuid.NewString(),
		Scenario:   sc.Name,
		Device:     dev.Name(),
		Status:     StatusPass,
		FailedStep: -1,
		StartedAt:  time.Now(),
	}
	defer func() { out.Duration = time.Since(out.StartedAt) }()

	logger := r.logger.WithFields(logrus.Fields{
		"run_id":   out.RunID,
		"scenario": sc.Name,
		"device":   dev.Name(),
	})

	if err := sc.Validate(); err != nil {
		out.Status = StatusFail
		out.Reason = ReasonInvalidScenario
		out.err = err
		if se, ok := err.(*stepError); ok {
			out.FailedStep = se.index
			out.StepName = sc.Steps[se.index].String()
		}
		logger.WithError(err).Error("Invalid scenario")
		return out
	}

	logger.WithField("steps", len(sc.Steps)).Info("Scenario started")

	for i, st := range sc.Steps {
		if r.opts.OnStep != nil {
			r.opts.OnStep(i, st)
		}
		budget := r.budget(sc, st)
		rep, err := r.runStep(ctx, dev, sc, i, st, budget)
		out.Steps = append(out.Steps, rep)
		if rep.Unity != nil {
			out.Unity = rep.Unity
		}

		if err != nil {
			out.FailedStep = i
			out.StepName = st.String()
			out.Reason = reasonFor(err)
			out.Context = dev.Tail()
			out.err = err
			out.Status = StatusFail
			if out.Reason == ReasonCancelled {
				out.Status = StatusCancelled
			}
			logger.WithFields(logrus.Fields{
				"step":   i,
				"reason": out.Reason,
			}).WithError(err).Warn("Scenario failed")
			return out
		}

		logger.WithFields(logrus.Fields{
			"step":    i,
			"elapsed": rep.Elapsed,
		}).Debugf("Step passed: %s", rep.Step)
	}

	logger.Info("Scenario passed")
	return out
}

func (r *Runner) budget(sc *Scenario, st Step) time.Duration {
	switch {
	case st.Timeout > 0:
		return st.Timeout
	case sc.Timeout > 0:
		return sc.Timeout
	default:
		return r.opts.DefaultTimeout
	}
}

func (r *Runner) runStep(ctx context.Context, dev Device, sc *Scenario, i int, st Step, budget time.Duration) (StepReport, error) {
	rep := StepReport{Index: i, Step: st.String(), Kind: st.Kind}
	start := time.Now()

	exps, err := st.expectations(sc.Match)
	if err != nil {
		rep.Error = err.Error()
		return rep, err
	}

	switch st.Kind {
	case StepExact, StepPattern:
		var m *expect.Match
		m, err = expect.Await(ctx, dev, exps[0], budget)
		if m != nil {
			rep.Lines = []string{m.Line}
			rep.Skipped = m.Skipped
		}

	case StepAllOf:
		var ms []*expect.Match
		ms, err = expect.AwaitAll(ctx, dev, exps, budget)
		for _, m := range ms {
			if m != nil {
				rep.Lines = append(rep.Lines, m.Line)
			}
		}

	case StepUnity:
		var summary *unity.Summary
		summary, err = unity.Await(ctx, dev, budget)
		rep.Unity = summary
		if err == nil {
			err = summary.Err()
		}
	}

	if err != nil {
		rep.Error = err.Error()
	}
	rep.Elapsed = time.Since(start)
	return rep, err
}
