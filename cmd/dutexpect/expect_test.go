package main

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type ExpectTestSuite struct {
	CommandTestSuite
}

func (s *ExpectTestSuite) TestInOrder() {
	port := s.WriteLog("boot.log", fatfsLog...)

	stdout, _, err := s.ExecuteCommand("expect", "-p", port, "Opening file", "Reading file")

	s.Require().NoError(err)
	s.Contains(stdout, "PASS expect on "+port)
	s.Contains(stdout, `[1] expect_exact "Reading file" (skipped 2 lines)`)
}

func (s *ExpectTestSuite) TestOutOfOrderFails() {
	port := s.WriteLog("boot.log", fatfsLog...)

	_, _, err := s.ExecuteCommand("expect", "-p", port, "Reading file", "Opening file")

	s.Require().ErrorIs(err, ErrScenarioFailed)
	s.Contains(err.Error(), `step 1 (expect_exact "Opening file") failed: stream_closed`)
}

func (s *ExpectTestSuite) TestAnyOrder() {
	port := s.WriteLog("boot.log", fatfsLog...)

	stdout, _, err := s.ExecuteCommand("expect", "-p", port, "--any-order", "Reading file", "Opening file")

	s.Require().NoError(err)
	s.Contains(stdout, `expect_all ["Reading file", "Opening file"]`)
}

func (s *ExpectTestSuite) TestRegex() {
	port := s.WriteLog("boot.log", fatfsLog...)

	_, _, err := s.ExecuteCommand("expect", "-p", port, "--regex", `^Read from file: '(.*)'$`, `unmounted\.$`)
	s.NoError(err)
}

func (s *ExpectTestSuite) TestSubstringAndIgnoreCase() {
	port := s.WriteLog("boot.log", "I (311) example: OPENING FILE")

	_, _, err := s.ExecuteCommand("expect", "-p", port, "Opening file")
	s.Require().ErrorIs(err, ErrScenarioFailed)

	_, _, err = s.ExecuteCommand("expect", "-p", port, "--substring", "--ignore-case", "Opening file")
	s.NoError(err)
}

func (s *ExpectTestSuite) TestFlagErrors() {
	port := s.WriteLog("boot.log", fatfsLog...)

	_, _, err := s.ExecuteCommand("expect", "-p", port)
	s.ErrorContains(err, "requires at least 1 arg(s)")

	_, _, err = s.ExecuteCommand("expect", "-p", port, "--regex", "--any-order", "x")
	s.ErrorContains(err, "none of the others can be")

	_, _, err = s.ExecuteCommand("expect", "-p", port, "--regex", "([a-z")
	s.ErrorContains(err, "invalid pattern")
}

func TestExpectTestSuite(t *testing.T) {
	suite.Run(t, new(ExpectTestSuite))
}
