package dut

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxTranscriptLines sets an upper limit on the transcript size to guard against misconfiguration.
const MaxTranscriptLines uint32 = 1024 * 1024

// TranscriptEntry is one captured device line with its arrival time.
type TranscriptEntry struct {
	At   time.Time
	Line string
}

// Transcript captures every line delivered on a session into a bounded ring buffer.
// When the buffer is full the oldest entries are overwritten.
type Transcript struct {
	buffer      mpmc.RichOverlappedRingBuffer[TranscriptEntry]
	captured    int64
	overwritten int64
}

// NewTranscript creates a transcript holding up to capacity lines.
func NewTranscript(capacity uint32) (*Transcript, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("transcript capacity must be > 0")
	}
	if capacity > MaxTranscriptLines {
		return nil, fmt.Errorf("transcript capacity %d exceeds maximum %d", capacity, MaxTranscriptLines)
	}
	return &Transcript{
		buffer: mpmc.NewOverlappedRingBuffer[TranscriptEntry](capacity),
	}, nil
}

// Add records a line.
func (t *Transcript) Add(at time.Time, line string) error {
	overwrites, err := t.buffer.EnqueueM(TranscriptEntry{At: at, Line: line})
	if err != nil {
		return fmt.Errorf("transcript enqueue: %w", err)
	}
	atomic.AddInt64(&t.overwritten, int64(overwrites))
	atomic.AddInt64(&t.captured, 1)
	return nil
}

// Captured returns how many lines were added in total.
func (t *Transcript) Captured() int64 {
	return atomic.LoadInt64(&t.captured)
}

// Overwritten returns how many lines were lost to buffer overflow.
func (t *Transcript) Overwritten() int64 {
	return atomic.LoadInt64(&t.overwritten)
}

// Drain removes all retained entries, oldest first.
func (t *Transcript) Drain() ([]TranscriptEntry, error) {
	var out []TranscriptEntry
	for !t.buffer.IsEmpty() {
		e, err := t.buffer.Dequeue()
		if err != nil {
			return out, fmt.Errorf("transcript dequeue: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteTo drains the transcript into w, one "<RFC3339Nano> <line>" per row.
func (t *Transcript) WriteTo(w io.Writer) (int64, error) {
	entries, err := t.Drain()
	var written int64
	for _, e := range entries {
		n, werr := fmt.Fprintf(w, "%s %s\n", e.At.Format(time.RFC3339Nano), e.Line)
		written += int64(n)
		if werr != nil {
			return written, werr
		}
	}
	return written, err
}
