package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/srg/dutexpect/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// fatfsLog is the console output of the Journaled FatFS basic example.
var fatfsLog = []string{
	"ets Jun  8 2016 00:22:57",
	"I (301) cpu_start: Starting scheduler.",
	"Journaled FatFS mounted successfully.",
	"Opening file",
	"File written",
	"Renaming file",
	"Reading file",
	"Read from file: 'Hello World!'",
	"Journaled FatFS unmounted.",
}

// CommandTestSuite runs the CLI against captured device logs replayed through file: targets.
// All cmd/dutexpect test suites embed it.
type CommandTestSuite struct {
	suite.Suite

	dir string
}

func (s *CommandTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

// WriteLog writes lines as a CRLF console log and returns its file: target.
func (s *CommandTestSuite) WriteLog(name string, lines ...string) string {
	path := filepath.Join(s.dir, name)
	data := strings.Join(lines, "\r\n")
	if len(lines) > 0 {
		data += "\r\n"
	}
	s.Require().NoError(os.WriteFile(path, []byte(data), 0o644), "log file MUST be written")
	return "file:" + path
}

// WriteFile writes a file under the test directory and returns its path.
func (s *CommandTestSuite) WriteFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644), "file MUST be written")
	return path
}

// Path returns a path under the test directory.
func (s *CommandTestSuite) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// ExecuteCommand runs a fresh root command with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	cmd := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// JSON returns an asserter for JSON reports that ignores run IDs, timestamps and durations.
func (s *CommandTestSuite) JSON() *testutils.JSONAsserter {
	return testutils.NewJSONAsserter(s.T())
}
