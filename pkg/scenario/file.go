package scenario

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/srg/dutexpect/pkg/expect"
	"gopkg.in/yaml.v3"
)

// scenarioFile is the YAML form of a Scenario:
//
//	name: jrnl_example_basic
//	timeout: 30s
//	match: {substring: true}
//	steps:
//	  - expect_exact: "Journaled FatFS mounted successfully."
//	  - expect: "Read from file: '(.*)'"
//	    timeout: 5s
//	  - expect_all: ["Opening file", "File written"]
//	  - expect_unity_test_output: true
type scenarioFile struct {
	Name    string               `yaml:"name"`
	Timeout time.Duration        `yaml:"timeout"`
	Match   *expect.MatchOptions `yaml:"match"`
	Steps   []stepFile           `yaml:"steps"`
}

type stepFile struct {
	ExpectExact *string              `yaml:"expect_exact"`
	Expect      *string              `yaml:"expect"`
	ExpectAll   []string             `yaml:"expect_all"`
	Unity       *bool                `yaml:"expect_unity_test_output"`
	Timeout     time.Duration        `yaml:"timeout"`
	Match       *expect.MatchOptions `yaml:"match"`
}

// Load reads a scenario from a YAML file. When the file has no name, the file
// name without extension is used.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

// Parse decodes a scenario from YAML and validates it.
func Parse(data []byte) (*Scenario, error) {
	var f scenarioFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid scenario YAML: %w", err)
	}

	sc := &Scenario{
		Name:    f.Name,
		Timeout: f.Timeout,
		Match:   expect.DefaultMatchOptions(),
	}
	if f.Match != nil {
		sc.Match = *f.Match
	}

	for i, sf := range f.Steps {
		st, err := sf.step()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		sc.Steps = append(sc.Steps, st)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func (sf stepFile) step() (Step, error) {
	var steps []Step
	if sf.ExpectExact != nil {
		steps = append(steps, Exact(*sf.ExpectExact))
	}
	if sf.Expect != nil {
		steps = append(steps, Pattern(*sf.Expect))
	}
	if sf.ExpectAll != nil {
		steps = append(steps, AllOf(sf.ExpectAll...))
	}
	if sf.Unity != nil && *sf.Unity {
		steps = append(steps, Unity())
	}

	if len(steps) != 1 {
		return Step{}, fmt.Errorf("exactly one of %s, %s, %s, %s is required",
			StepExact, StepPattern, StepAllOf, StepUnity)
	}

	st := steps[0]
	st.Timeout = sf.Timeout
	st.Match = sf.Match
	return st, nil
}
