package engine

import (
	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/google/uuid"
)

type planStep struct {
	typ   api.StepType
	title string
}

var plans = map[api.TaskType][]planStep{
	api.TaskTypeBugFix: {
		{api.StepAnalysis, "Analyze the reported bug"},
		{api.StepPlanning, "Plan the fix"},
		{api.StepCodeGeneration, "Generate the fix"},
		{api.StepFileModification, "Apply changes to affected files"},
		{api.StepTesting, "Run and extend tests"},
		{api.StepCommit, "Commit the fix"},
		{api.StepPullRequest, "Open a pull request"},
	},
	api.TaskTypeFeature: {
		{api.StepAnalysis, "Analyze the feature request"},
		{api.StepPlanning, "Plan the implementation"},
		{api.StepCodeGeneration, "Generate the implementation"},
		{api.StepFileCreation, "Create new files"},
		{api.StepTesting, "Run and extend tests"},
		{api.StepCommit, "Commit the implementation"},
		{api.StepPullRequest, "Open a pull request"},
	},
	api.TaskTypeReview: {
		{api.StepAnalysis, "Analyze the changes under review"},
		{api.StepReview, "Write the review"},
	},
	api.TaskTypeRefactoring: {
		{api.StepAnalysis, "Analyze the refactoring target"},
		{api.StepPlanning, "Plan the refactoring"},
		{api.StepFileModification, "Apply the refactoring"},
		{api.StepTesting, "Run tests"},
		{api.StepCommit, "Commit the refactoring"},
		{api.StepPullRequest, "Open a pull request"},
	},
	api.TaskTypeTesting: {
		{api.StepAnalysis, "Analyze coverage gaps"},
		{api.StepTesting, "Generate and run tests"},
		{api.StepCommit, "Commit the tests"},
		{api.StepPullRequest, "Open a pull request"},
	},
}

// planFor seeds the ordered step list for a task type. Step numbers start
// at 1 and define execution order.
func planFor(tt api.TaskType, taskID string) []api.ExecutionStep {
	tmpl := plans[tt]
	steps := make([]api.ExecutionStep, len(tmpl))
	for i, p := range tmpl {
		steps[i] = api.ExecutionStep{
			ID:         uuid.NewString(),
			TaskID:     taskID,
			StepNumber: i + 1,
			Type:       p.typ,
			Status:     api.StepPending,
			Title:      p.title,
		}
	}
	return steps
}
