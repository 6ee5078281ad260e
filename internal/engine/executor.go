package engine

import (
	"context"
	"fmt"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
)

// GeneratorExecutor executes steps by prompting a generator. Steps that in
// a full deployment would touch source control (commit, pull request)
// produce the model's proposed message/description; the actual VCS calls
// are a downstream collaborator.
type GeneratorExecutor struct {
	gen genai.Generator
}

func NewGeneratorExecutor(g genai.Generator) *GeneratorExecutor {
	return &GeneratorExecutor{gen: g}
}

func (x *GeneratorExecutor) ExecuteStep(ctx context.Context, t *api.Task, step *api.ExecutionStep) (*api.StepResult, error) {
	req := &genai.Request{
		Input:        stepPrompt(t, step),
		TargetType:   "task_step",
		PriorContext: t.Context,
	}
	out, err := x.gen.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("step %d (%s): %w", step.StepNumber, step.Type, err)
	}
	return &api.StepResult{Kind: kindFor(step.Type), Text: out}, nil
}

func stepPrompt(t *api.Task, step *api.ExecutionStep) string {
	return fmt.Sprintf(
		"Task (%s) on %s/%s: %s\n\nCurrent step %d of %d: %s (%s).",
		t.Type, t.Repository.Owner, t.Repository.Name, t.Description,
		step.StepNumber, len(t.Steps), step.Title, step.Type,
	)
}

func kindFor(st api.StepType) string {
	switch st {
	case api.StepFileCreation, api.StepFileModification:
		return "files"
	case api.StepTesting:
		return "tests"
	case api.StepCommit:
		return "commit"
	case api.StepPullRequest:
		return "pull_request"
	default:
		return "text"
	}
}
