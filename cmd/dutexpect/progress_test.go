package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "Running jrnl_basic on file:unity.log", "Starting")

	p.Start()
	p.SetPhase("step 1/1")
	time.Sleep(3 * progressUpdateInterval)
	p.Stop()
	p.Stop()

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\rRunning jrnl_basic on file:unity.log (Starting...)"), out)
	assert.Contains(t, out, "(step 1/1...)")
	assert.True(t, strings.HasSuffix(out, clearLineSequence))
	assert.Panics(t, p.Start)
}

func TestProgressPrinter_StopWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "x", "y")
	p.Stop()
	assert.Empty(t, buf.String())
}
