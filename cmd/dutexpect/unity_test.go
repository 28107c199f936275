package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type UnityTestSuite struct {
	CommandTestSuite
}

func (s *UnityTestSuite) TestPass() {
	port := s.WriteLog("unity.log",
		"Running jrnl tests",
		"main/test_jrnl.c:112:test_mount_unmount:PASS",
		"main/test_jrnl.c:171:test_trim:IGNORE:not supported on this card",
		"2 Tests 0 Failures 1 Ignored",
		"OK",
	)

	stdout, _, err := s.ExecuteCommand("unity", "-p", port)

	s.Require().NoError(err)
	s.Contains(stdout, "PASS unity on "+port)
	s.Contains(stdout, "unity: 2 Tests 0 Failures 1 Ignored")
	s.Contains(stdout, "IGNORE main/test_jrnl.c:171 test_trim: not supported on this card")
}

func (s *UnityTestSuite) TestFailures() {
	port := s.WriteLog("unity.log",
		"main/test_jrnl.c:112:test_mount_unmount:PASS",
		"main/test_jrnl.c:140:test_power_loss:FAIL:Expected 1 Was 0",
		"2 Tests 1 Failures 0 Ignored",
	)

	stdout, _, err := s.ExecuteCommand("unity", "-p", port)

	s.Require().ErrorIs(err, ErrScenarioFailed)
	s.Contains(err.Error(), "failed: test_failure")
	s.Contains(stdout, "fail (test_failure) unity")
	s.Contains(stdout, "FAIL   main/test_jrnl.c:140 test_power_loss: Expected 1 Was 0")
}

func (s *UnityTestSuite) TestIncomplete() {
	port := s.WriteLog("unity.log", "main/test_jrnl.c:112:test_mount_unmount:PASS")

	stdout, _, err := s.ExecuteCommand("unity", "-p", port, "--format", "json")

	s.Require().ErrorIs(err, ErrScenarioFailed)
	s.JSON().Assert(stdout, `{
		"status": "fail",
		"reason": "stream_closed",
		"unity": {"tests": 0, "done": false, "records": [{"name": "test_mount_unmount", "status": "PASS"}]}
	}`)
}

func (s *UnityTestSuite) TestInconsistentCounts() {
	port := s.WriteLog("unity.log", "main/test_jrnl.c:112:test_mount_unmount:PASS", "3 Tests 0 Failures 0 Ignored")

	_, _, err := s.ExecuteCommand("unity", "-p", port)

	s.Require().ErrorIs(err, ErrScenarioFailed)
	s.Contains(err.Error(), "parse_error")
}

func TestUnityTestSuite(t *testing.T) {
	suite.Run(t, new(UnityTestSuite))
}
