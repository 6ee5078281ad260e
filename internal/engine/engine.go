package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Validation and state errors surfaced synchronously to callers.
var (
	ErrValidation      = errors.New("invalid task request")
	ErrNotRetryable    = errors.New("task is not in a retryable status")
	ErrAlreadyTerminal = errors.New("task is already in a terminal status")
)

// StepExecutor performs the actual work of one step: model calls, file
// edits, source-control actions. The engine only depends on this contract.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, t *api.Task, step *api.ExecutionStep) (*api.StepResult, error)
}

// Engine drives tasks through their state machine: creation, step-by-step
// execution, resumable retry and cancellation. It owns a registry of
// cancel funcs for in-flight runs so a cancel request can interrupt work
// without waiting for the next step boundary.
type Engine struct {
	store *store.Store
	exec  StepExecutor

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(s *store.Store, exec StepExecutor) *Engine {
	return &Engine{store: s, exec: exec, running: make(map[string]context.CancelFunc)}
}

// CreateTask validates the request, seeds the step plan for the task type
// and registers the task as active. The returned task has status pending;
// execution is started separately via Run.
func (e *Engine) CreateTask(req *api.CreateTaskRequest) (*api.Task, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if err := api.ValidateID(req.UserID); err != nil {
		return nil, fmt.Errorf("%w: user_id: %v", ErrValidation, err)
	}
	if req.Repository.Owner == "" || req.Repository.Name == "" {
		return nil, fmt.Errorf("%w: repository owner and name are required", ErrValidation)
	}

	tt := req.Type
	if tt == "" {
		tt = api.TaskTypeFeature
	}
	if !tt.Valid() {
		return nil, fmt.Errorf("%w: unknown task type %q", ErrValidation, req.Type)
	}

	prio := req.Priority
	if prio == "" {
		prio = api.PriorityMedium
	}
	if !prio.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, req.Priority)
	}

	id := req.TaskID
	if id == "" {
		id = uuid.NewString()
	} else if err := api.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: task_id: %v", ErrValidation, err)
	}

	t := &api.Task{
		ID:             id,
		Type:           tt,
		Status:         api.TaskPending,
		Priority:       prio,
		Description:    req.Description,
		Repository:     req.Repository,
		GitHubIssueURL: req.GitHubIssueURL,
		Context:        req.Context,
		Requirements:   req.Requirements,
		CreatedAt:      time.Now().UTC(),
		UserID:         req.UserID,
		Steps:          planFor(tt, id),
	}

	e.store.Put(t)
	return t, nil
}

// Run executes every pending step of the task in order, persisting each
// transition through the store. Completed steps are never re-run, which is
// what makes a post-retry Run resume instead of restart. Run emits a root
// tracing span per task and a child span per step.
func (e *Engine) Run(ctx context.Context, id string) error {
	t, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, t.Status)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.register(id, cancel)
	defer e.unregister(id)

	tr := otel.Tracer("sdlcd")
	ctx, span := tr.Start(
		ctx,
		"sdlc.task",
		trace.WithNewRoot(),
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.String("task.type", string(t.Type)),
		),
	)
	defer span.End()
	span.AddEvent("task.started")

	if t.StartedAt == nil {
		now := time.Now().UTC()
		t.StartedAt = &now
	}

	for i := range t.Steps {
		step := &t.Steps[i]
		if step.Status != api.StepPending {
			continue
		}

		if e.cancelled(id) {
			span.AddEvent("task.cancelled")
			return context.Canceled
		}

		t.Status = statusForStep(step.Type)
		started := time.Now().UTC()
		step.Status = api.StepInProgress
		step.StartedAt = &started
		e.store.Update(t)

		_, stepSpan := tr.Start(ctx, "sdlc.step", trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Int("step.number", step.StepNumber),
			attribute.String("step.type", string(step.Type)),
		))
		stepSpan.AddEvent("step.started")

		res, err := e.exec.ExecuteStep(ctx, t, step)
		finished := time.Now().UTC()

		if ctx.Err() != nil {
			// Cancelled mid-step. Cancellation mutates no steps; the
			// in_progress step is reset by a later retry.
			stepSpan.AddEvent("step.interrupted")
			stepSpan.End()
			span.AddEvent("task.cancelled")
			return ctx.Err()
		}

		if err != nil {
			step.Status = api.StepFailed
			step.Error = err.Error()
			step.CompletedAt = &finished
			e.store.Update(t)
			e.store.Complete(id, nil, err.Error())

			stepSpan.RecordError(err)
			stepSpan.SetStatus(codes.Error, err.Error())
			stepSpan.AddEvent("step.failed")
			stepSpan.End()

			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.AddEvent("task.failed")
			return err
		}

		step.Status = api.StepCompleted
		step.Result = res
		step.CompletedAt = &finished
		e.store.Update(t)

		stepSpan.AddEvent("step.completed")
		stepSpan.SetStatus(codes.Ok, "")
		stepSpan.End()
	}

	if e.cancelled(id) {
		span.AddEvent("task.cancelled")
		return context.Canceled
	}

	e.store.Complete(id, resultFrom(t), "")
	span.AddEvent("task.completed")
	span.SetStatus(codes.Ok, "")
	return nil
}

// Retry reopens a failed or cancelled task in place. Completed steps keep
// their results; every other step is reset to pending without being
// removed or renumbered, so the next Run resumes from the first redo step.
func (e *Engine) Retry(id string) (*api.Task, error) {
	t, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != api.TaskFailed && t.Status != api.TaskCancelled {
		return nil, fmt.Errorf("%w: %s", ErrNotRetryable, t.Status)
	}

	if len(t.Steps) == 0 {
		// failed before any step was recorded
		t.Steps = []api.ExecutionStep{}
		t.Progress = 0
	} else {
		for i := range t.Steps {
			s := &t.Steps[i]
			if s.Status == api.StepCompleted {
				continue
			}
			s.Status = api.StepPending
			s.StartedAt = nil
			s.CompletedAt = nil
			s.Error = ""
			s.Result = nil
		}
		t.Progress = api.ComputeProgress(t.Steps)
	}

	now := time.Now().UTC()
	t.Status = api.TaskPending
	t.StartedAt = nil
	t.CompletedAt = nil
	t.ActualDuration = 0
	t.Result = nil
	t.RetryCount++
	t.LastRetryAt = &now

	e.store.Update(t)
	return t, nil
}

// Cancel is a terminal transition allowed only while the task is
// non-terminal. Steps are not mutated. An in-flight Run is signalled so it
// abandons the current step.
func (e *Engine) Cancel(id string) error {
	t, err := e.store.Get(id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrAlreadyTerminal, t.Status)
	}

	t.Status = api.TaskCancelled
	e.store.Update(t)
	e.store.Complete(id, nil, "")
	e.signal(id)
	return nil
}

// Delete removes the task unconditionally, interrupting any in-flight run.
func (e *Engine) Delete(id string) bool {
	e.signal(id)
	return e.store.Delete(id)
}

func (e *Engine) register(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[id] = cancel
}

func (e *Engine) unregister(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, id)
}

func (e *Engine) signal(id string) {
	e.mu.Lock()
	cancel, ok := e.running[id]
	e.mu.Unlock()
	if ok && cancel != nil {
		cancel()
	}
}

func (e *Engine) cancelled(id string) bool {
	cur, err := e.store.Get(id)
	return err == nil && cur.Status == api.TaskCancelled
}

func statusForStep(st api.StepType) api.TaskStatus {
	switch st {
	case api.StepAnalysis:
		return api.TaskAnalyzing
	case api.StepPlanning:
		return api.TaskPlanning
	case api.StepReview:
		return api.TaskReviewing
	default:
		return api.TaskExecuting
	}
}

// resultFrom assembles the task-level result from the step results.
func resultFrom(t *api.Task) *api.TaskResult {
	res := &api.TaskResult{Summary: fmt.Sprintf("completed %d steps", len(t.Steps))}
	for i := range t.Steps {
		sr := t.Steps[i].Result
		if sr == nil {
			continue
		}
		if sr.Text != "" {
			res.Output = sr.Text
		}
		if sr.PullRequestURL != "" {
			res.PullRequestURL = sr.PullRequestURL
		}
	}
	return res
}
