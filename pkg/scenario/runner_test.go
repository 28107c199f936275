package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/internal/testutils"
	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/expect"
	"github.com/stretchr/testify/suite"
)

var fatfsSteps = []Step{
	Exact("Journaled FatFS mounted successfully."),
	Exact("Opening file"),
	Exact("File written"),
	Exact("Renaming file"),
	Exact("Reading file"),
	Exact("Read from file: 'Hello World!'"),
	Exact("Journaled FatFS unmounted."),
}

type RunnerTestSuite struct {
	suite.Suite

	logger *logrus.Logger
	runner *Runner
}

func (s *RunnerTestSuite) SetupTest() {
	s.logger = testutils.NewTestHelper(s.T()).Logger
	s.runner = NewRunner(s.logger, RunnerOptions{DefaultTimeout: time.Second})
}

func (s *RunnerTestSuite) newDevice(name string) (*testutils.FakeStream, *dut.Session) {
	stream := testutils.NewFakeStream(name)
	session := dut.NewSession(stream, dut.WithName(name), dut.WithLogger(s.logger))
	s.T().Cleanup(func() { _ = session.Close() })
	return stream, session
}

func (s *RunnerTestSuite) TestFatFSExamplePasses() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines(
		"ets Jun  8 2016 00:22:57",
		"I (301) cpu_start: Starting scheduler.",
		"Journaled FatFS mounted successfully.",
		"Opening file",
		"File written",
		"I (512) jrnl: commit 1",
		"Renaming file",
		"Reading file",
		"Read from file: 'Hello World!'",
		"Journaled FatFS unmounted.",
	)

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "jrnl_example_basic", Steps: fatfsSteps})

	s.Require().NoError(out.Err())
	s.True(out.Passed())
	s.Equal(-1, out.FailedStep)
	s.Equal("esp32", out.Device)
	s.NotEmpty(out.RunID)
	s.Len(out.Steps, 7)
	s.Equal(2, out.Steps[0].Skipped)
	s.Equal(1, out.Steps[3].Skipped)
	s.Equal([]string{"Read from file: 'Hello World!'"}, out.Steps[5].Lines)
	s.True(stream.Closed(), "session is closed after the run")
}

func (s *RunnerTestSuite) TestMissingLineFailsAtThatStep() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines(
		"Journaled FatFS mounted successfully.",
		"Opening file",
		"File written",
		"Reading file",
		"Read from file: 'Hello World!'",
		"Journaled FatFS unmounted.",
	)

	sc := &Scenario{Name: "jrnl_example_basic", Timeout: 200 * time.Millisecond, Steps: fatfsSteps}
	out := s.runner.Run(context.Background(), session, sc)

	s.Equal(StatusFail, out.Status)
	s.Equal(3, out.FailedStep)
	s.Equal(`expect_exact "Renaming file"`, out.StepName)
	s.Equal(ReasonTimeout, out.Reason)
	s.Contains(out.Context, "Journaled FatFS unmounted.")
	s.Len(out.Steps, 4)

	err := out.Err()
	s.ErrorIs(err, dut.ErrTimeout)
	var se *ScenarioError
	s.Require().True(errors.As(err, &se))
	s.Equal(3, se.StepIndex)
	s.Equal("esp32", se.Device)
	s.Contains(se.Error(), `step 3 (expect_exact "Renaming file") failed: timeout`)
}

func (s *RunnerTestSuite) TestOrderIsSignificant() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("File written", "Opening file")

	sc := &Scenario{
		Name:    "order",
		Timeout: 150 * time.Millisecond,
		Steps:   []Step{Exact("Opening file"), Exact("File written")},
	}
	out := s.runner.Run(context.Background(), session, sc)

	s.Equal(StatusFail, out.Status)
	s.Equal(1, out.FailedStep)
	s.Equal(ReasonTimeout, out.Reason)
}

func (s *RunnerTestSuite) TestStepTimeoutOverridesScenario() {
	_, session := s.newDevice("esp32")

	sc := &Scenario{
		Name:    "budget",
		Timeout: time.Minute,
		Steps:   []Step{Exact("never").WithTimeout(100 * time.Millisecond)},
	}
	start := time.Now()
	out := s.runner.Run(context.Background(), session, sc)

	s.Equal(ReasonTimeout, out.Reason)
	s.Less(time.Since(start), 5*time.Second)
}

func (s *RunnerTestSuite) TestBudgetPrecedence() {
	r := NewRunner(s.logger, RunnerOptions{DefaultTimeout: 7 * time.Second})
	sc := &Scenario{}

	s.Equal(7*time.Second, r.budget(sc, Exact("x")))
	sc.Timeout = 3 * time.Second
	s.Equal(3*time.Second, r.budget(sc, Exact("x")))
	s.Equal(time.Second, r.budget(sc, Exact("x").WithTimeout(time.Second)))
}

func (s *RunnerTestSuite) TestScenarioMatchOptions() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("I (300) example: Opening file", "I (310) example: FILE WRITTEN")

	sc := &Scenario{
		Name:  "prefixed",
		Match: expect.MatchOptions{Substring: true},
		Steps: []Step{
			Exact("Opening file"),
			Exact("file written").WithMatch(expect.MatchOptions{Substring: true, IgnoreCase: true}),
		},
	}
	out := s.runner.Run(context.Background(), session, sc)
	s.Require().NoError(out.Err())
}

func (s *RunnerTestSuite) TestAllOfStep() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("wifi: connected", "sntp: synced", "ready")

	sc := &Scenario{
		Name:  "boot",
		Steps: []Step{AllOf("sntp: synced", "wifi: connected"), Pattern(`^rea(dy)$`)},
	}
	out := s.runner.Run(context.Background(), session, sc)

	s.Require().NoError(out.Err())
	s.Equal([]string{"sntp: synced", "wifi: connected"}, out.Steps[0].Lines)
	s.Equal([]string{"ready"}, out.Steps[1].Lines)
}

func (s *RunnerTestSuite) TestUnityPass() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines(
		"main/test_jrnl.c:112:test_mount_unmount:PASS",
		"main/test_jrnl.c:140:test_power_loss:PASS",
		"2 Tests 0 Failures 0 Ignored",
	)

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "jrnl_basic", Steps: []Step{Unity()}})

	s.Require().NoError(out.Err())
	s.Require().NotNil(out.Unity)
	s.Equal(2, out.Unity.Tests)
}

func (s *RunnerTestSuite) TestUnityFailure() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines(
		"main/test_jrnl.c:112:test_mount_unmount:PASS",
		"main/test_jrnl.c:140:test_power_loss:FAIL:Expected 1 Was 0",
		"2 Tests 1 Failures 0 Ignored",
	)

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "jrnl_basic", Steps: []Step{Unity()}})

	s.Equal(StatusFail, out.Status)
	s.Equal(ReasonTestFailure, out.Reason)
	s.Equal(0, out.FailedStep)
	s.Require().NotNil(out.Unity)
	s.Len(out.Unity.Failed(), 1)
	s.Contains(out.Err().Error(), "test_power_loss")
}

func (s *RunnerTestSuite) TestUnityParseError() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("t.c:1:test_a:PASS", "5 Tests 0 Failures 0 Ignored")

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "jrnl_basic", Steps: []Step{Unity()}})

	s.Equal(ReasonParseError, out.Reason)
	s.ErrorIs(out.Err(), dut.ErrParse)
}

func (s *RunnerTestSuite) TestStreamClosed() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("Journaled FatFS mounted successfully.").End()

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "fatfs", Steps: fatfsSteps})

	s.Equal(StatusFail, out.Status)
	s.Equal(1, out.FailedStep)
	s.Equal(ReasonStreamClosed, out.Reason)
	s.Equal([]string{"Journaled FatFS mounted successfully."}, out.Context)
}

func (s *RunnerTestSuite) TestCancelled() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("Journaled FatFS mounted successfully.")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	out := s.runner.Run(ctx, session, &Scenario{Name: "fatfs", Timeout: 10 * time.Second, Steps: fatfsSteps})

	s.Equal(StatusCancelled, out.Status)
	s.Equal(ReasonCancelled, out.Reason)
	s.ErrorIs(out.Err(), context.Canceled)
}

func (s *RunnerTestSuite) TestInvalidScenario() {
	stream, session := s.newDevice("esp32")

	out := s.runner.Run(context.Background(), session, &Scenario{
		Name:  "broken",
		Steps: []Step{Exact("ok"), Pattern(`([a-z`)},
	})

	s.Equal(StatusFail, out.Status)
	s.Equal(ReasonInvalidScenario, out.Reason)
	s.Equal(1, out.FailedStep)
	s.Empty(out.Steps)
	s.True(stream.Closed())
}

func (s *RunnerTestSuite) TestEmptyScenario() {
	_, session := s.newDevice("esp32")

	out := s.runner.Run(context.Background(), session, &Scenario{Name: "empty"})

	s.Equal(ReasonInvalidScenario, out.Reason)
	s.Equal(-1, out.FailedStep)
	s.Contains(out.Err().Error(), "has no steps")
}

func (s *RunnerTestSuite) TestOnStep() {
	stream, session := s.newDevice("esp32")
	stream.EmitLines("a", "b")

	var seen []int
	r := NewRunner(s.logger, RunnerOptions{
		DefaultTimeout: time.Second,
		OnStep:         func(i int, _ Step) { seen = append(seen, i) },
	})
	out := r.Run(context.Background(), session, &Scenario{Name: "ab", Steps: []Step{Exact("a"), Exact("b")}})

	s.Require().NoError(out.Err())
	s.Equal([]int{0, 1}, seen)
}

func (s *RunnerTestSuite) TestDefaultRunnerOptions() {
	s.Equal(30*time.Second, DefaultRunnerOptions().DefaultTimeout)
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}
