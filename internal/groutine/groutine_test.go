package groutine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NameInContext(t *testing.T) {
	var parent context.Context // nil falls back to Background
	got := make(chan string, 1)
	Go(parent, "dut-line-pump", func(ctx context.Context) {
		got <- Name(ctx)
	})
	assert.Equal(t, "dut-line-pump", <-got)
}

func TestGoTracked_Waits(t *testing.T) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names []string
	)
	for _, n := range []string{"scenario-a", "scenario-b", "scenario-c"} {
		GoTracked(context.Background(), &wg, n, func(ctx context.Context) {
			mu.Lock()
			names = append(names, Name(ctx))
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.ElementsMatch(t, []string{"scenario-a", "scenario-b", "scenario-c"}, names)
}

func TestName_WithoutGo(t *testing.T) {
	assert.Equal(t, "", Name(context.Background()))
	var none context.Context
	assert.Equal(t, "", Name(none))
}
