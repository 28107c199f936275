package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter displays the current phase with elapsed seconds on one
// terminal line.
//
// Usage:
//
//	p := NewProgressPrinter(os.Stderr, "Running jrnl_basic on serial:/dev/ttyUSB0", "Opening")
//	p.Start()
//	defer p.Stop()
//	p.SetPhase("step 2/7")
//
// A ProgressPrinter is single-use. Stop may be called any number of times.
type ProgressPrinter struct {
	w         io.Writer
	prefix    string
	phase     atomic.Value // string
	startTime time.Time
	stopChan  chan struct{}
	done      chan struct{}
	started   atomic.Bool
	stopOnce  sync.Once
}

// NewProgressPrinter creates a progress printer that counts up from Start.
func NewProgressPrinter(w io.Writer, prefix string, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins displaying progress updates in a background goroutine.
// Panics if called more than once on the same ProgressPrinter instance.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.startTime = time.Now()
	p.print(p.phase.Load().(string), 0)

	ticker := time.NewTicker(progressUpdateInterval)
	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print(p.phase.Load().(string), int(time.Since(p.startTime).Seconds()))
			}
		}
	}()
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase changes the displayed phase. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop stops the progress display and clears the line.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if p.started.Load() {
			<-p.done
			fmt.Fprint(p.w, clearLineSequence)
		}
	})
}
