package dut

import "sync/atomic"

// Tail keeps the most recent lines seen on a session, for failure diagnostics.
//
// It wraps a buffered channel with overwrite-oldest semantics: Push never blocks,
// and once the capacity is reached the oldest line is discarded.
//
//	t := NewTail(3)
//	for _, l := range []string{"a", "b", "c", "d"} {
//	    t.Push(l)
//	}
//	t.Lines() // ["b", "c", "d"]
//
// Tail is owned by its session; Push and Lines must not be called concurrently.
type Tail struct {
	ch      chan string
	metrics TailMetrics
}

// TailMetrics are lock-free counters for a Tail.
type TailMetrics struct {
	Pushed      int64
	Overwritten int64
}

// NewTail creates a Tail holding at most capacity lines.
func NewTail(capacity int) *Tail {
	if capacity <= 0 {
		panic("dut: tail capacity must be > 0")
	}
	return &Tail{ch: make(chan string, capacity)}
}

// Push appends a line, discarding the oldest one if the tail is full.
func (t *Tail) Push(line string) {
	select {
	case t.ch <- line:
	default:
		select {
		case <-t.ch: // drop oldest
			atomic.AddInt64(&t.metrics.Overwritten, 1)
		default:
		}
		t.ch <- line
	}
	atomic.AddInt64(&t.metrics.Pushed, 1)
}

// Lines returns the retained lines, oldest first, leaving the tail unchanged.
func (t *Tail) Lines() []string {
	n := len(t.ch)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		l := <-t.ch
		out = append(out, l)
		t.ch <- l
	}
	return out
}

// Len returns the number of retained lines.
func (t *Tail) Len() int {
	return len(t.ch)
}

// Cap returns the tail capacity.
func (t *Tail) Cap() int {
	return cap(t.ch)
}

// Metrics returns a snapshot of the tail counters.
func (t *Tail) Metrics() TailMetrics {
	return TailMetrics{
		Pushed:      atomic.LoadInt64(&t.metrics.Pushed),
		Overwritten: atomic.LoadInt64(&t.metrics.Overwritten),
	}
}
