package engine

import (
	"context"
	"sync"
	"time"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
)

// ScriptedExecutor is a StepExecutor fake for tests. It records which step
// numbers were executed and fails the step numbers listed in FailOn.
type ScriptedExecutor struct {
	mu     sync.Mutex
	FailOn map[int]error
	// Delay makes each step block, so tests can interleave cancellation.
	Delay time.Duration

	calls []int
}

func (x *ScriptedExecutor) ExecuteStep(ctx context.Context, t *api.Task, step *api.ExecutionStep) (*api.StepResult, error) {
	x.mu.Lock()
	x.calls = append(x.calls, step.StepNumber)
	x.mu.Unlock()

	if x.Delay > 0 {
		select {
		case <-time.After(x.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := x.FailOn[step.StepNumber]; err != nil {
		return nil, err
	}
	return &api.StepResult{Kind: "text", Text: "ok"}, nil
}

// Calls returns the step numbers executed so far, in order.
func (x *ScriptedExecutor) Calls() []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]int, len(x.calls))
	copy(out, x.calls)
	return out
}
