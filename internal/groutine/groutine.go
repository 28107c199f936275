// Package groutine starts goroutines that carry a name, both as a pprof label
// (visible in goroutine profiles) and as a context value (visible in logs).
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

type ctxKey string

const nameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled with name.
//
//	groutine.Go(ctx, "dut-line-pump", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		fn(context.WithValue(ctx, nameKey, name))
	})
}

// GoTracked is Go with wg.Add(1) before start and wg.Done() when fn returns.
func GoTracked(parentCtx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer wg.Done()
		fn(ctx)
	})
}

// Name retrieves the goroutine name from ctx, or "" if ctx was not created by Go.
func Name(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(nameKey).(string); ok {
		return v
	}
	return ""
}
