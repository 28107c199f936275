// Package unity recognises the result block printed by the Unity test runner on
// an embedded target:
//
//	main/test_jrnl.c:112:test_mount_unmount:PASS
//	main/test_jrnl.c:140:test_power_loss:FAIL:Expected 1 Was 0
//	main/test_jrnl.c:171:test_trim:IGNORE:not supported on this card
//	3 Tests 1 Failures 1 Ignored
//
// Token literals and field order are the firmware's fixed output contract.
package unity

import (
	"fmt"
	"regexp"
	"strconv"
)

// Status is the outcome of a single Unity test.
type Status string

const (
	StatusPass   Status = "PASS"
	StatusFail   Status = "FAIL"
	StatusIgnore Status = "IGNORE"
)

// Record is one per-test result line.
type Record struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// String renders the record in wire format.
func (r Record) String() string {
	if r.Message != "" {
		return fmt.Sprintf("%s:%d:%s:%s:%s", r.File, r.Line, r.Name, r.Status, r.Message)
	}
	return fmt.Sprintf("%s:%d:%s:%s", r.File, r.Line, r.Name, r.Status)
}

var (
	recordLine  = regexp.MustCompile(`^([^:]+):(\d+):([^:]+):(PASS|FAIL|IGNORE)(?::(.*))?$`)
	summaryLine = regexp.MustCompile(`^(\d+) Tests (\d+) Failures (\d+) Ignored$`)
)

// ParseRecord parses a per-test result line. PASS records never carry a message.
func ParseRecord(line string) (Record, bool) {
	idx := recordLine.FindStringSubmatchIndex(line)
	if idx == nil {
		return Record{}, false
	}
	group := func(i int) string { return line[idx[2*i]:idx[2*i+1]] }

	n, err := strconv.Atoi(group(2))
	if err != nil {
		return Record{}, false
	}

	rec := Record{
		File:   group(1),
		Line:   n,
		Name:   group(3),
		Status: Status(group(4)),
	}

	// Group 5 is unset when the line has no ":<message>" suffix
	if idx[10] >= 0 {
		if rec.Status == StatusPass {
			return Record{}, false
		}
		rec.Message = group(5)
	}
	return rec, true
}

// counts is the parsed "<N> Tests <M> Failures <K> Ignored" line.
type counts struct {
	tests, failures, ignored int
}

func parseSummary(line string) (counts, bool) {
	m := summaryLine.FindStringSubmatch(line)
	if m == nil {
		return counts{}, false
	}
	var c counts
	var err error
	if c.tests, err = strconv.Atoi(m[1]); err != nil {
		return counts{}, false
	}
	if c.failures, err = strconv.Atoi(m[2]); err != nil {
		return counts{}, false
	}
	if c.ignored, err = strconv.Atoi(m[3]); err != nil {
		return counts{}, false
	}
	return c, true
}
