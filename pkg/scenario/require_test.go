package scenario

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failed bool
	msg    string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Fatalf(format string, args ...any) {
	r.failed = true
	r.msg = fmt.Sprintf(format, args...)
}

func TestRequire(t *testing.T) {
	pass := &Outcome{Status: StatusPass, FailedStep: -1}
	rt := &recordingT{}
	Require(rt, pass)
	assert.False(t, rt.failed)

	fail := &Outcome{
		Scenario:   "jrnl_example_basic",
		Device:     "esp32",
		Status:     StatusFail,
		FailedStep: 3,
		StepName:   `expect_exact "Renaming file"`,
		Reason:     ReasonTimeout,
		Context:    []string{"File written", "Reading file"},
	}
	rt = &recordingT{}
	Require(rt, fail)
	assert.True(t, rt.failed)
	assert.Contains(t, rt.msg, `scenario "jrnl_example_basic" on esp32: step 3 (expect_exact "Renaming file") failed: timeout`)
	assert.Contains(t, rt.msg, "last 2 device lines:\n  File written\n  Reading file")
}
