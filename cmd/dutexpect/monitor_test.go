package main

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type MonitorTestSuite struct {
	CommandTestSuite
}

func (s *MonitorTestSuite) TestPrintsUntilStreamEnds() {
	port := s.WriteLog("boot.log", fatfsLog...)

	stdout, _, err := s.ExecuteCommand("monitor", "-p", port)

	s.Require().NoError(err)
	s.Equal(strings.Join(fatfsLog, "\n")+"\n", stdout)
}

func (s *MonitorTestSuite) TestUntil() {
	port := s.WriteLog("boot.log", fatfsLog...)

	stdout, _, err := s.ExecuteCommand("monitor", "-p", port, "--until", "^File")

	s.Require().NoError(err)
	s.True(strings.HasSuffix(stdout, "Opening file\nFile written\n"), stdout)
	s.NotContains(stdout, "Renaming file")
}

func (s *MonitorTestSuite) TestUntilNotSeenBeforeDuration() {
	_, _, err := s.ExecuteCommand("monitor", "-p", "exec:sleep 5", "--until", "never", "--duration", "150ms")

	s.Require().Error(err)
	s.Contains(FormatUserError(err), "timed out waiting for device output")
	s.Contains(err.Error(), "monitor until /never/")
}

func (s *MonitorTestSuite) TestDurationWithoutUntil() {
	_, _, err := s.ExecuteCommand("monitor", "-p", "exec:sleep 5", "--duration", "150ms")
	s.NoError(err)
}

func (s *MonitorTestSuite) TestTimestamps() {
	port := s.WriteLog("boot.log", "Opening file")

	stdout, _, err := s.ExecuteCommand("monitor", "-p", port, "--timestamps")

	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^\d{2}:\d{2}:\d{2}\.\d{3} Opening file\n$`), stdout)
}

func (s *MonitorTestSuite) TestInvalidUntil() {
	_, _, err := s.ExecuteCommand("monitor", "-p", "file:x", "--until", "(")
	s.ErrorContains(err, "invalid --until pattern")
}

func TestMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(MonitorTestSuite))
}
