package scenario

import "strings"

// TestingT is the subset of testing.TB used by Require.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

// Require fails t with the outcome's diagnostics unless the outcome passed.
func Require(t TestingT, o *Outcome) {
	t.Helper()
	if err := o.Err(); err != nil {
		t.Fatalf("%v\nlast %d device lines:\n  %s", err, len(o.Context), strings.Join(o.Context, "\n  "))
	}
}
