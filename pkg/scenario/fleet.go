package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/srg/dutexpect/internal/groutine"
)

// Target pairs a device with the scenario to run on it.
type Target struct {
	Device   Device
	Scenario *Scenario
}

// RunFleet runs every target in its own goroutine and waits for all of them.
// Devices are independent: nothing is shared between runs except the result map.
//
// Results are keyed by device name. A repeated name gets a "#<index>" suffix,
// bumped past any key already taken, so every target keeps its own outcome.
func (r *Runner) RunFleet(ctx context.Context, targets []Target) map[string]*Outcome {
	results := hashmap.New[string, *Outcome]()

	keys := make([]string, len(targets))
	used := make(map[string]struct{}, len(targets))
	for i, t := range targets {
		name := t.Device.Name()
		key := name
		for n := i; ; n++ {
			if _, dup := used[key]; !dup {
				break
			}
			key = fmt.Sprintf("%s#%d", name, n)
		}
		used[key] = struct{}{}
		keys[i] = key
	}

	var wg sync.WaitGroup
	for i, t := range targets {
		key, target := keys[i], t
		groutine.GoTracked(ctx, &wg, "scenario-"+key, func(ctx context.Context) {
			results.Set(key, r.Run(ctx, target.Device, target.Scenario))
		})
	}
	wg.Wait()

	out := make(map[string]*Outcome, results.Len())
	results.Range(func(key string, value *Outcome) bool {
		out[key] = value
		return true
	})
	return out
}

// FleetErr joins the errors of every non-pass outcome, or returns nil if all passed.
func FleetErr(outcomes map[string]*Outcome) error {
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := outcomes[k].Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d devices failed: %w", len(errs), len(outcomes), errors.Join(errs...))
}
