package scenario

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/unity"
)

// Status is the overall result of a scenario run.
type Status string

const (
	StatusPass      Status = "pass"
	StatusFail      Status = "fail"
	StatusCancelled Status = "cancelled"
)

// Reason explains a non-pass outcome.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTimeout         Reason = Reason(dut.KindTimeout)
	ReasonStreamClosed    Reason = Reason(dut.KindStreamClosed)
	ReasonParseError      Reason = Reason(dut.KindParse)
	ReasonCancelled       Reason = Reason(dut.KindCancelled)
	ReasonTestFailure     Reason = "test_failure"
	ReasonInvalidScenario Reason = "invalid_scenario"
)

// StepReport records what one executed step observed.
type StepReport struct {
	Index   int            `json:"index"`
	Step    string         `json:"step"`
	Kind    StepKind       `json:"kind"`
	Lines   []string       `json:"lines,omitempty"` // matched lines, in expectation order
	Skipped int            `json:"skipped"`
	Elapsed time.Duration  `json:"elapsed"`
	Unity   *unity.Summary `json:"unity,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Outcome is the single result of running a scenario against one device.
type Outcome struct {
	RunID      string         `json:"run_id"`
	Scenario   string         `json:"scenario"`
	Device     string         `json:"device"`
	Status     Status         `json:"status"`
	FailedStep int            `json:"failed_step"` // -1 when no step failed
	StepName   string         `json:"step,omitempty"`
	Reason     Reason         `json:"reason,omitempty"`
	Context    []string       `json:"context,omitempty"` // last lines seen before the failure
	Unity      *unity.Summary `json:"unity,omitempty"`
	Steps      []StepReport   `json:"steps"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`

	err error
}

// Passed reports whether every step succeeded.
func (o *Outcome) Passed() bool {
	return o.Status == StatusPass
}

// Err returns nil for a passing outcome and a *ScenarioError otherwise.
func (o *Outcome) Err() error {
	if o.Passed() {
		return nil
	}
	return &ScenarioError{
		Scenario:  o.Scenario,
		Device:    o.Device,
		StepIndex: o.FailedStep,
		Step:      o.StepName,
		Reason:    o.Reason,
		Context:   o.Context,
		Err:       o.err,
	}
}

// ScenarioError is returned to the surrounding test framework for any non-pass outcome.
type ScenarioError struct {
	Scenario  string
	Device    string
	StepIndex int
	Step      string
	Reason    Reason
	Context   []string
	Err       error
}

// Error implements the error interface
func (e *ScenarioError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %q on %s", e.Scenario, e.Device)
	if e.StepIndex >= 0 {
		fmt.Fprintf(&b, ": step %d (%s)", e.StepIndex, e.Step)
	}
	fmt.Fprintf(&b, " failed: %s", e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the step error, so errors.Is(err, dut.ErrTimeout) works on a ScenarioError.
func (e *ScenarioError) Unwrap() error {
	return e.Err
}

// reasonFor maps a step error to a Reason.
func reasonFor(err error) Reason {
	if k := dut.KindOf(err); k != "" {
		return Reason(k)
	}
	var tf *unity.TestFailureError
	if errors.As(err, &tf) {
		return ReasonTestFailure
	}
	return ReasonInvalidScenario
}
