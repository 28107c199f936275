package unity

import (
	"fmt"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Summary is the parsed Unity result block.
//
// Tests, Failures and Ignored are the counts declared by the summary line; Records
// are the per-test lines collected before it. Done is false when the summary line
// was never seen (the wait timed out or the stream ended).
type Summary struct {
	Tests    int      `json:"tests"`
	Failures int      `json:"failures"`
	Ignored  int      `json:"ignored"`
	Records  []Record `json:"records"`
	Done     bool     `json:"done"`
}

// Failed returns the FAIL records in the order they were printed.
func (s *Summary) Failed() []Record {
	return s.withStatus(StatusFail)
}

// IgnoredRecords returns the IGNORE records in the order they were printed.
func (s *Summary) IgnoredRecords() []Record {
	return s.withStatus(StatusIgnore)
}

// Passed reports whether the block is complete and declares no failures.
func (s *Summary) Passed() bool {
	return s.Done && s.Failures == 0
}

// Err returns a *TestFailureError when the block declares failures, nil otherwise.
func (s *Summary) Err() error {
	if s.Failures == 0 {
		return nil
	}
	return &TestFailureError{Failures: s.Failures, Tests: s.Tests, Failed: s.Failed()}
}

// ByFile groups records by source file, preserving first-seen order of files and records.
func (s *Summary) ByFile() *orderedmap.OrderedMap[string, []Record] {
	out := orderedmap.New[string, []Record]()
	for _, r := range s.Records {
		existing, _ := out.Get(r.File)
		out.Set(r.File, append(existing, r))
	}
	return out
}

// String renders the summary line.
func (s *Summary) String() string {
	return fmt.Sprintf("%d Tests %d Failures %d Ignored", s.Tests, s.Failures, s.Ignored)
}

// check verifies the declared counts against the collected records.
func (s *Summary) check() error {
	var problems []string
	if s.Tests != len(s.Records) {
		problems = append(problems, fmt.Sprintf("declared %d tests, saw %d records", s.Tests, len(s.Records)))
	}
	if n := len(s.Failed()); s.Failures != n {
		problems = append(problems, fmt.Sprintf("declared %d failures, saw %d FAIL records", s.Failures, n))
	}
	if n := len(s.IgnoredRecords()); s.Ignored != n {
		problems = append(problems, fmt.Sprintf("declared %d ignored, saw %d IGNORE records", s.Ignored, n))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("unity summary %q inconsistent: %s", s.String(), strings.Join(problems, "; "))
}

func (s *Summary) withStatus(st Status) []Record {
	var out []Record
	for _, r := range s.Records {
		if r.Status == st {
			out = append(out, r)
		}
	}
	return out
}

// TestFailureError reports Unity tests that failed on the target.
type TestFailureError struct {
	Tests    int
	Failures int
	Failed   []Record
}

// Error implements the error interface
func (e *TestFailureError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		names = append(names, r.Name)
	}
	return fmt.Sprintf("%d of %d unity tests failed: %s", e.Failures, e.Tests, strings.Join(names, ", "))
}
