package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/cyberpunk042/devops-control-plane-sub008/internal/plan"
	"github.com/cyberpunk042/devops-control-plane-sub008/internal/state"
)

// runDAG executes the not-yet-completed steps of a plan graph with at most
// e.workers steps in flight. Package-manager serialization is already in
// the graph as edges, so the scheduler itself has no lock special-casing.
// Progress is persisted after every step so a crash loses at most the step
// that was running.
func (e *Engine) runDAG(ctx context.Context, graph *plan.Graph, ps *state.PlanState) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(e.workers))
	in := graph.InDegrees()
	done := ps.CompletedSteps()

	// Steps finished in a previous run release their successors up front.
	for _, id := range graph.Order() {
		if done[id] {
			for _, next := range graph.Successors(id) {
				in[next]--
			}
		}
	}

	var launch func(id string)
	launch = func(id string) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				ps.Results[id] = &plan.StepResult{
					StepID: id,
					Status: plan.StatusFailed,
					Error:  err.Error(),
				}
				mu.Unlock()
				return
			}
			res := e.exec.Run(ctx, graph.Step(id))
			sem.Release(1)

			mu.Lock()
			defer mu.Unlock()
			ps.Results[id] = res
			if res.Ok() {
				for _, next := range graph.Successors(id) {
					in[next]--
					if in[next] == 0 && !done[next] && ps.Results[next] == nil {
						launch(next)
					}
				}
			} else {
				// Everything downstream can no longer run.
				for _, desc := range graph.Descendants(id) {
					if !done[desc] && ps.Results[desc] == nil {
						ps.Results[desc] = &plan.StepResult{
							StepID: desc,
							Status: plan.StatusBlocked,
							Error:  fmt.Sprintf("blocked by failed step %s", id),
						}
					}
				}
			}
			ps.AdvanceCursor()
			if err := e.store.Save(ps); err != nil {
				e.logger.Warn("could not persist plan progress", "plan", ps.PlanID, "error", err.Error())
			}
		}()
	}

	mu.Lock()
	for _, id := range graph.Order() {
		if !done[id] && in[id] == 0 {
			launch(id)
		}
	}
	mu.Unlock()

	wg.Wait()
}
