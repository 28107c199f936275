package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/srg/dutexpect/pkg/dut"
)

func (s *RunnerTestSuite) TestRunFleet_Independent() {
	goodStream, good := s.newDevice("dut-a")
	badStream, bad := s.newDevice("dut-b")

	goodStream.EmitLines("Opening file", "File written")
	badStream.EmitLines("Opening file")

	sc := &Scenario{
		Name:    "write",
		Timeout: 200 * time.Millisecond,
		Steps:   []Step{Exact("Opening file"), Exact("File written")},
	}
	outcomes := s.runner.RunFleet(context.Background(), []Target{
		{Device: good, Scenario: sc},
		{Device: bad, Scenario: sc},
	})

	s.Require().Len(outcomes, 2)
	s.True(outcomes["dut-a"].Passed())
	s.Equal(StatusFail, outcomes["dut-b"].Status)
	s.Equal(1, outcomes["dut-b"].FailedStep)
	s.NotEqual(outcomes["dut-a"].RunID, outcomes["dut-b"].RunID)

	err := FleetErr(outcomes)
	s.Require().Error(err)
	s.Contains(err.Error(), "1 of 2 devices failed")
	s.ErrorIs(err, dut.ErrTimeout)

	var se *ScenarioError
	s.Require().True(errors.As(err, &se))
	s.Equal("dut-b", se.Device)
}

func (s *RunnerTestSuite) TestRunFleet_DuplicateNames() {
	streamA, a := s.newDevice("dut")
	streamB, b := s.newDevice("dut")
	streamA.EmitLines("ready")
	streamB.EmitLines("ready")

	sc := &Scenario{Name: "boot", Steps: []Step{Exact("ready")}}
	outcomes := s.runner.RunFleet(context.Background(), []Target{
		{Device: a, Scenario: sc},
		{Device: b, Scenario: sc},
	})

	s.Require().Len(outcomes, 2)
	s.Contains(outcomes, "dut")
	s.Contains(outcomes, "dut#1")
	s.NoError(FleetErr(outcomes))
}

func (s *RunnerTestSuite) TestRunFleet_SuffixDoesNotCollide() {
	sc := &Scenario{Name: "boot", Timeout: 200 * time.Millisecond, Steps: []Step{Exact("ready")}}

	var targets []Target
	for i, name := range []string{"dut#2", "dut", "dut"} {
		stream, session := s.newDevice(name)
		if i < 2 {
			stream.EmitLines("ready")
		}
		targets = append(targets, Target{Device: session, Scenario: sc})
	}

	outcomes := s.runner.RunFleet(context.Background(), targets)

	s.Require().Len(outcomes, 3)
	s.True(outcomes["dut#2"].Passed())
	s.True(outcomes["dut"].Passed())
	s.Require().Contains(outcomes, "dut#3")
	s.Equal(StatusFail, outcomes["dut#3"].Status)

	err := FleetErr(outcomes)
	s.Require().Error(err)
	s.Contains(err.Error(), "1 of 3 devices failed")
}

func (s *RunnerTestSuite) TestRunFleet_Empty() {
	outcomes := s.runner.RunFleet(context.Background(), nil)
	s.Empty(outcomes)
	s.NoError(FleetErr(outcomes))
}
