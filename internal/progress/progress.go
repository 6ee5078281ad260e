// Package progress is the "observe work until it settles" capability.
// The Poller is the pull adapter: it re-fetches task snapshots on a fixed
// cadence. The push equivalent for single-shot generations lives in the
// stream package; callers pick a transport, the engine never knows which.
package progress

import (
	"context"
	"time"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
)

// Observer watches one piece of work until it reaches a terminal state or
// the observation budget runs out.
type Observer interface {
	Observe(ctx context.Context, id string) (*Snapshot, error)
}

// Fetcher supplies task snapshots. The task store satisfies it directly;
// the CLI implements it over the HTTP snapshot endpoint.
type Fetcher interface {
	Get(id string) (*api.Task, error)
}

type StopReason string

const (
	// StopTerminal: the task reached a terminal status.
	StopTerminal StopReason = "terminal"
	// StopExhausted: the poll budget ran out before the task settled.
	StopExhausted StopReason = "exhausted"
)

// Snapshot is the observer's merged local view of a task.
type Snapshot struct {
	TaskID   string
	Status   api.TaskStatus
	Progress int
	Steps    []api.ExecutionStep
	Result   *api.TaskResult
	Polls    int
	Reason   StopReason
}

const (
	DefaultInterval = 2 * time.Second
	// DefaultMaxPolls bounds resource usage on stuck tasks: polling stops
	// after this many cycles even if the task never settles.
	DefaultMaxPolls = 300
)

// Poller repeatedly fetches a task at a fixed interval. It is read-only
// and safe to run concurrently with other observers of the same task.
type Poller struct {
	fetch    Fetcher
	interval time.Duration
	maxPolls int
}

func NewPoller(f Fetcher, interval time.Duration, maxPolls int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	return &Poller{fetch: f, interval: interval, maxPolls: maxPolls}
}

// Observe polls until the task is terminal or maxPolls cycles have run.
// Transient fetch failures (e.g. a momentarily missing id) do not stop
// the loop; only a terminal status, the poll ceiling, or ctx does.
func (p *Poller) Observe(ctx context.Context, id string) (*Snapshot, error) {
	snap := &Snapshot{TaskID: id}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i := 0; i < p.maxPolls; i++ {
		snap.Polls++
		if t, err := p.fetch.Get(id); err == nil {
			snap.merge(t)
			if t.Status.Terminal() {
				snap.Reason = StopTerminal
				return snap, nil
			}
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}

	snap.Reason = StopExhausted
	return snap, nil
}

// merge folds the freshest fields into the local view.
func (s *Snapshot) merge(t *api.Task) {
	s.Status = t.Status
	s.Progress = t.Progress
	s.Steps = t.Steps
	if t.Result != nil {
		s.Result = t.Result
	}
}
