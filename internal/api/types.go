package api

import (
	"math"
	"time"
)

// Default address the sdlcd server binds to and the CLI talks to.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8690
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAnalyzing TaskStatus = "analyzing"
	TaskPlanning  TaskStatus = "planning"
	TaskExecuting TaskStatus = "executing"
	TaskReviewing TaskStatus = "reviewing"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
// outside the explicit retry path.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepSkipped    StepStatus = "skipped"
)

func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

type TaskType string

const (
	TaskTypeBugFix      TaskType = "bug_fix"
	TaskTypeFeature     TaskType = "feature"
	TaskTypeReview      TaskType = "review"
	TaskTypeRefactoring TaskType = "refactoring"
	TaskTypeTesting     TaskType = "testing"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeBugFix, TaskTypeFeature, TaskTypeReview, TaskTypeRefactoring, TaskTypeTesting:
		return true
	default:
		return false
	}
}

type StepType string

const (
	StepAnalysis         StepType = "analysis"
	StepPlanning         StepType = "planning"
	StepCodeGeneration   StepType = "code_generation"
	StepFileCreation     StepType = "file_creation"
	StepFileModification StepType = "file_modification"
	StepTesting          StepType = "testing"
	StepCommit           StepType = "commit"
	StepPullRequest      StepType = "pull_request"
	StepReview           StepType = "review"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Repository identifies the target repo for a task.
type Repository struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Branch string `json:"branch,omitempty"`
}

// StepResult is the typed success payload of a step. Kind selects which of
// the remaining fields are meaningful, so downstream consumers can switch
// on it instead of probing an untyped blob.
type StepResult struct {
	Kind           string   `json:"kind"` // text | files | tests | commit | pull_request
	Text           string   `json:"text,omitempty"`
	Files          []string `json:"files,omitempty"`
	TestsPassed    int      `json:"tests_passed,omitempty"`
	TestsFailed    int      `json:"tests_failed,omitempty"`
	CommitSHA      string   `json:"commit_sha,omitempty"`
	PullRequestURL string   `json:"pull_request_url,omitempty"`
}

// TaskResult is the opaque final payload of a finished task.
type TaskResult struct {
	Summary        string `json:"summary,omitempty"`
	Output         string `json:"output,omitempty"`
	PullRequestURL string `json:"pull_request_url,omitempty"`
	ShareURL       string `json:"share_url,omitempty"`
}

// ExecutionStep is one discrete phase of a task's execution. StepNumber
// values are unique and increasing within a task and define run order.
type ExecutionStep struct {
	ID          string            `json:"id"`
	TaskID      string            `json:"task_id"`
	StepNumber  int               `json:"step_number"`
	Type        StepType          `json:"type"`
	Status      StepStatus        `json:"status"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *StepResult       `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Task is one unit of AI-assisted work tracked end to end.
type Task struct {
	ID             string        `json:"id"`
	Type           TaskType      `json:"type"`
	Status         TaskStatus    `json:"status"`
	Priority       Priority      `json:"priority"`
	Description    string        `json:"description"`
	Repository     Repository    `json:"repository"`
	GitHubIssueURL string        `json:"github_issue_url,omitempty"`
	Context        string        `json:"context,omitempty"`
	Requirements   string        `json:"requirements,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	ActualDuration time.Duration `json:"actual_duration,omitempty"`

	Steps       []ExecutionStep `json:"steps"`
	Progress    int             `json:"progress"`
	Result      *TaskResult     `json:"result,omitempty"`
	UserID      string          `json:"user_id"`
	RetryCount  int             `json:"retry_count"`
	LastRetryAt *time.Time      `json:"last_retry_at,omitempty"`
}

// Clone returns a deep copy so callers can hand tasks across goroutines
// without sharing step slices or metadata maps.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Steps != nil {
		c.Steps = make([]ExecutionStep, len(t.Steps))
		for i := range t.Steps {
			c.Steps[i] = *cloneStep(&t.Steps[i])
		}
	}
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.LastRetryAt = cloneTime(t.LastRetryAt)
	return &c
}

func cloneStep(s *ExecutionStep) *ExecutionStep {
	c := *s
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ComputeProgress derives the 0-100 completion percentage from the steps.
// Tasks with no steps report 0.
func ComputeProgress(steps []ExecutionStep) int {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for i := range steps {
		if steps[i].Status == StepCompleted {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(steps))))
}

// CreateTaskRequest is the input for task creation. TaskID is optional;
// the server generates one when absent.
type CreateTaskRequest struct {
	TaskID         string     `json:"task_id,omitempty"`
	UserID         string     `json:"user_id"`
	Description    string     `json:"description"`
	Type           TaskType   `json:"type,omitempty"`
	Priority       Priority   `json:"priority,omitempty"`
	Repository     Repository `json:"repository"`
	GitHubIssueURL string     `json:"github_issue_url,omitempty"`
	Context        string     `json:"context,omitempty"`
	Requirements   string     `json:"requirements,omitempty"`
}

// GenerateRequest is the one-shot input of a streaming generation session.
type GenerateRequest struct {
	Input        string `json:"input"`
	TargetType   string `json:"target_type"`
	PriorContext string `json:"prior_context,omitempty"`
}

type StreamEventType string

const (
	EventProgress StreamEventType = "progress"
	EventContent  StreamEventType = "content"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one frame of the streaming channel. Progress events carry
// Phase, content events carry Content, the complete event carries the
// authoritative FullContent plus side artifacts, error events carry Error.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	Phase       string          `json:"phase,omitempty"`
	Content     string          `json:"content,omitempty"`
	FullContent string          `json:"full_content,omitempty"`
	ShareURL    string          `json:"share_url,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
