package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/srg/dutexpect/pkg/expect"
)

// StepKind tags the variant of a Step.
type StepKind string

const (
	StepExact   StepKind = "expect_exact"             // one exact line
	StepPattern StepKind = "expect"                   // one regular expression
	StepAllOf   StepKind = "expect_all"               // a set of exact lines, any order
	StepUnity   StepKind = "expect_unity_test_output" // a complete Unity result block
)

// Step is one entry of a scenario's ordered pipeline.
type Step struct {
	Kind    StepKind
	Text    string               // StepExact literal or StepPattern expression
	Texts   []string             // StepAllOf literals
	Timeout time.Duration        // 0 uses the scenario default
	Match   *expect.MatchOptions // nil uses the scenario default; ignored by patterns and unity
}

// Exact expects one line equal to text.
func Exact(text string) Step {
	return Step{Kind: StepExact, Text: text}
}

// Pattern expects one line in which expr matches.
func Pattern(expr string) Step {
	return Step{Kind: StepPattern, Text: expr}
}

// AllOf expects every text as a line, in any order.
func AllOf(texts ...string) Step {
	return Step{Kind: StepAllOf, Texts: texts}
}

// Unity expects a complete Unity result block with no failures.
func Unity() Step {
	return Step{Kind: StepUnity}
}

// WithTimeout returns a copy of the step with its own budget.
func (st Step) WithTimeout(d time.Duration) Step {
	st.Timeout = d
	return st
}

// WithMatch returns a copy of the step with its own literal comparison options.
func (st Step) WithMatch(opts expect.MatchOptions) Step {
	st.Match = &opts
	return st
}

// String describes the step for reports.
func (st Step) String() string {
	switch st.Kind {
	case StepExact:
		return fmt.Sprintf("expect_exact %q", st.Text)
	case StepPattern:
		return fmt.Sprintf("expect /%s/", st.Text)
	case StepAllOf:
		quoted := make([]string, len(st.Texts))
		for i, t := range st.Texts {
			quoted[i] = fmt.Sprintf("%q", t)
		}
		return fmt.Sprintf("expect_all [%s]", strings.Join(quoted, ", "))
	case StepUnity:
		return "expect_unity_test_output"
	default:
		return fmt.Sprintf("unknown step %q", st.Kind)
	}
}

// expectations compiles the step into matcher rules. Unity steps compile to none.
func (st Step) expectations(defaultMatch expect.MatchOptions) ([]expect.Expectation, error) {
	match := defaultMatch
	if st.Match != nil {
		match = *st.Match
	}

	switch st.Kind {
	case StepExact:
		return []expect.Expectation{expect.Exact(st.Text, expect.WithMatchOptions(match))}, nil
	case StepPattern:
		e, err := expect.Pattern(st.Text)
		if err != nil {
			return nil, err
		}
		return []expect.Expectation{e}, nil
	case StepAllOf:
		if len(st.Texts) == 0 {
			return nil, fmt.Errorf("expect_all needs at least one line")
		}
		exps := make([]expect.Expectation, len(st.Texts))
		for i, t := range st.Texts {
			exps[i] = expect.Exact(t, expect.WithMatchOptions(match))
		}
		return exps, nil
	case StepUnity:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown step kind %q", st.Kind)
	}
}
