package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/scenario"
	"github.com/srg/dutexpect/pkg/transport"
)

// Command-level errors
var (
	// ErrScenarioFailed is returned after the report was printed for a non-pass outcome,
	// so main only has to set the exit code.
	ErrScenarioFailed = errors.New("scenario failed")
)

// FormatUserError turns an error into a single line suitable for the terminal.
func FormatUserError(err error) string {
	var se *scenario.ScenarioError
	switch {
	case errors.Is(err, ErrScenarioFailed):
		return err.Error()
	case errors.As(err, &se):
		if se.StepIndex >= 0 {
			return fmt.Sprintf("%s: step %d (%s) failed: %s", se.Device, se.StepIndex, se.Step, se.Reason)
		}
		return fmt.Sprintf("%s: %s", se.Device, se.Reason)
	case errors.Is(err, dut.ErrTimeout):
		return "timed out waiting for device output: " + err.Error()
	case errors.Is(err, dut.ErrStreamClosed):
		return "device stream closed: " + err.Error()
	case errors.Is(err, transport.ErrPortBusy):
		return err.Error() + "; close the other terminal or test run using it"
	case errors.Is(err, os.ErrPermission):
		return err.Error() + "; check that your user may access the device (e.g. the dialout group)"
	default:
		return err.Error()
	}
}
