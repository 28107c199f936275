package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/srg/dutexpect/internal/testutils"
	"github.com/srg/dutexpect/pkg/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AllStepKinds(t *testing.T) {
	data := []byte(`
name: mixed
timeout: 10s
match: {substring: true}
steps:
  - expect_exact: "Journaled FatFS mounted successfully."
  - expect: "Read from file: '(.*)'"
    timeout: 5s
  - expect_all: ["Opening file", "File written"]
    match: {ignore_case: true}
  - expect_unity_test_output: true
`)

	sc, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "mixed", sc.Name)
	assert.Equal(t, 10*time.Second, sc.Timeout)
	assert.Equal(t, expect.MatchOptions{Substring: true}, sc.Match)
	require.Len(t, sc.Steps, 4)

	assert.Equal(t, Exact("Journaled FatFS mounted successfully."), sc.Steps[0])
	assert.Equal(t, Pattern("Read from file: '(.*)'").WithTimeout(5*time.Second), sc.Steps[1])
	assert.Equal(t, AllOf("Opening file", "File written").WithMatch(expect.MatchOptions{IgnoreCase: true}), sc.Steps[2])
	assert.Equal(t, Unity(), sc.Steps[3])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "unknown key",
			yaml:    "name: x\nsteps:\n  - expect_exactly: foo\n",
			wantMsg: "field expect_exactly not found",
		},
		{
			name:    "two kinds in one step",
			yaml:    "steps:\n  - expect_exact: a\n    expect: b\n",
			wantMsg: "step 0: exactly one of",
		},
		{
			name:    "no kind",
			yaml:    "steps:\n  - timeout: 1s\n",
			wantMsg: "step 0: exactly one of",
		},
		{
			name:    "unity false",
			yaml:    "steps:\n  - expect_unity_test_output: false\n",
			wantMsg: "exactly one of",
		},
		{
			name:    "bad pattern",
			yaml:    "steps:\n  - expect_exact: ok\n  - expect: \"([a-z\"\n",
			wantMsg: "step 1: invalid pattern",
		},
		{
			name:    "empty expect_all",
			yaml:    "steps:\n  - expect_all: []\n",
			wantMsg: "expect_all needs at least one line",
		},
		{
			name:    "no steps",
			yaml:    "name: empty\n",
			wantMsg: `scenario "empty" has no steps`,
		},
		{
			name:    "bad duration",
			yaml:    "timeout: soon\nsteps:\n  - expect_exact: a\n",
			wantMsg: "invalid scenario YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_NameFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot_check.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps:\n  - expect_exact: ready\n"), 0o644))

	sc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "boot_check", sc.Name)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [\n"), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestParse_BuiltinScenarios(t *testing.T) {
	data, err := testutils.LoadFixture("scenarios/jrnl_example_basic.yaml")
	require.NoError(t, err)

	sc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "jrnl_example_basic", sc.Name)
	assert.Equal(t, 30*time.Second, sc.Timeout)
	assert.True(t, sc.Match.Substring)
	assert.Equal(t, fatfsSteps, sc.Steps)

	data, err = testutils.LoadFixture("scenarios/jrnl_basic.yaml")
	require.NoError(t, err)

	sc, err = Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "jrnl_basic", sc.Name)
	assert.Equal(t, []Step{Unity()}, sc.Steps)
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, `expect_exact "Opening file"`, Exact("Opening file").String())
	assert.Equal(t, `expect /^File (\w+)$/`, Pattern(`^File (\w+)$`).String())
	assert.Equal(t, `expect_all ["a", "b"]`, AllOf("a", "b").String())
	assert.Equal(t, "expect_unity_test_output", Unity().String())
	assert.Equal(t, `unknown step "bogus"`, Step{Kind: "bogus"}.String())
}
