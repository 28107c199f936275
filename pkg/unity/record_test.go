package unity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Record
		ok   bool
	}{
		{
			name: "pass",
			line: "main/test_jrnl.c:112:test_mount_unmount:PASS",
			want: Record{File: "main/test_jrnl.c", Line: 112, Name: "test_mount_unmount", Status: StatusPass},
			ok:   true,
		},
		{
			name: "fail with message",
			line: "main/test_jrnl.c:140:test_power_loss:FAIL:Expected 1 Was 0",
			want: Record{File: "main/test_jrnl.c", Line: 140, Name: "test_power_loss", Status: StatusFail, Message: "Expected 1 Was 0"},
			ok:   true,
		},
		{
			name: "message keeps colons",
			line: "t.c:7:test_x:FAIL:Expected 'a:b' Was 'c'",
			want: Record{File: "t.c", Line: 7, Name: "test_x", Status: StatusFail, Message: "Expected 'a:b' Was 'c'"},
			ok:   true,
		},
		{
			name: "fail without message",
			line: "t.c:7:test_x:FAIL",
			want: Record{File: "t.c", Line: 7, Name: "test_x", Status: StatusFail},
			ok:   true,
		},
		{
			name: "ignore with reason",
			line: "main/test_jrnl.c:171:test_trim:IGNORE:not supported on this card",
			want: Record{File: "main/test_jrnl.c", Line: 171, Name: "test_trim", Status: StatusIgnore, Message: "not supported on this card"},
			ok:   true,
		},
		{name: "pass never carries a message", line: "t.c:7:test_x:PASS:extra"},
		{name: "unknown status", line: "t.c:7:test_x:SKIP"},
		{name: "non numeric line", line: "t.c:seven:test_x:PASS"},
		{name: "log line", line: "I (312) example: Opening file"},
		{name: "summary line", line: "3 Tests 0 Failures 0 Ignored"},
		{name: "empty", line: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRecord(tt.line)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.line, got.String())
			}
		})
	}
}

func TestParseSummary(t *testing.T) {
	c, ok := parseSummary("12 Tests 2 Failures 1 Ignored")
	require.True(t, ok)
	assert.Equal(t, counts{tests: 12, failures: 2, ignored: 1}, c)

	for _, line := range []string{
		"12 Tests 2 Failures",
		"12 tests 2 failures 1 ignored",
		" 12 Tests 2 Failures 1 Ignored",
		"-----------------------",
		"OK",
	} {
		_, ok := parseSummary(line)
		assert.False(t, ok, line)
	}
}
