package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/srg/dutexpect/pkg/scenario"
	"github.com/srg/dutexpect/pkg/unity"
)

const (
	formatText = "text"
	formatJSON = "json"
)

type palette struct {
	pass, fail, dim, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		pass: color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
		bold: color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.pass, p.fail, p.dim, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// sortedOutcomes returns outcomes ordered by device key.
func sortedOutcomes(outcomes map[string]*scenario.Outcome) []*scenario.Outcome {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*scenario.Outcome, 0, len(keys))
	for _, k := range keys {
		out = append(out, outcomes[k])
	}
	return out
}

// writeReports prints every outcome in the requested format.
func writeReports(w io.Writer, outcomes []*scenario.Outcome, format string, colored bool) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(outcomes) == 1 {
			return enc.Encode(outcomes[0])
		}
		return enc.Encode(outcomes)
	case formatText:
		p := newPalette(colored)
		for i, o := range outcomes {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeTextReport(w, o, p)
		}
		return nil
	default:
		return fmt.Errorf("invalid format %q (must be %s or %s)", format, formatText, formatJSON)
	}
}

func writeTextReport(w io.Writer, o *scenario.Outcome, p palette) {
	verdict := p.pass.Sprint("PASS")
	if !o.Passed() {
		verdict = p.fail.Sprint(string(o.Status))
		if o.Reason != scenario.ReasonNone {
			verdict += p.fail.Sprintf(" (%s)", o.Reason)
		}
	}

	fmt.Fprintf(w, "%s %s on %s %s\n", verdict, p.bold.Sprint(o.Scenario), o.Device,
		p.dim.Sprintf("[%s, %s]", o.RunID, o.Duration.Round(time.Millisecond)))

	for _, st := range o.Steps {
		mark := p.pass.Sprint("ok  ")
		if st.Error != "" {
			mark = p.fail.Sprint("FAIL")
		}
		fmt.Fprintf(w, "  %s [%d] %s", mark, st.Index, st.Step)
		if st.Skipped > 0 {
			fmt.Fprintf(w, " %s", p.dim.Sprintf("(skipped %d lines)", st.Skipped))
		}
		fmt.Fprintln(w)
		if st.Error != "" {
			fmt.Fprintf(w, "         %s\n", st.Error)
		}
	}

	if o.Unity != nil {
		writeUnity(w, o.Unity, p)
	}

	if !o.Passed() && len(o.Context) > 0 {
		fmt.Fprintf(w, "  last %d device lines:\n", len(o.Context))
		for _, line := range o.Context {
			fmt.Fprintf(w, "    %s %s\n", p.dim.Sprint("|"), line)
		}
	}
}

func writeUnity(w io.Writer, s *unity.Summary, p palette) {
	status := s.String()
	if !s.Done {
		status = fmt.Sprintf("incomplete, %d records before the summary line", len(s.Records))
	}
	fmt.Fprintf(w, "  unity: %s\n", status)

	for pair := s.ByFile().Oldest(); pair != nil; pair = pair.Next() {
		for _, r := range pair.Value {
			switch r.Status {
			case unity.StatusFail:
				fmt.Fprintf(w, "    %s %s:%d %s: %s\n", p.fail.Sprint("FAIL  "), pair.Key, r.Line, r.Name, r.Message)
			case unity.StatusIgnore:
				fmt.Fprintf(w, "    %s %s:%d %s: %s\n", p.dim.Sprint("IGNORE"), pair.Key, r.Line, r.Name, r.Message)
			}
		}
	}
}
