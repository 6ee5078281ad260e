package store_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/store"
)

func newTask(id, userID string) *api.Task {
	return &api.Task{
		ID:          id,
		UserID:      userID,
		Type:        api.TaskTypeBugFix,
		Status:      api.TaskPending,
		Priority:    api.PriorityMedium,
		Description: "fix the flaky login test",
		Repository:  api.Repository{Owner: "durdan", Name: "sample-app"},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := store.New()
	s.Put(newTask("t1", "u1"))

	got, err := s.Get("t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "t1" || got.Status != api.TaskPending {
		t.Fatalf("unexpected task: %+v", got)
	}

	if _, err := s.Get("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := store.New()
	task := newTask("t1", "u1")
	task.Steps = []api.ExecutionStep{{StepNumber: 1, Status: api.StepPending}}
	s.Put(task)

	a, _ := s.Get("t1")
	a.Steps[0].Status = api.StepCompleted

	b, _ := s.Get("t1")
	if b.Steps[0].Status != api.StepPending {
		t.Fatalf("mutating a returned task leaked into the store")
	}
}

func TestProgressRecomputedOnMutation(t *testing.T) {
	s := store.New()
	task := newTask("t1", "u1")
	task.Steps = []api.ExecutionStep{
		{StepNumber: 1, Status: api.StepCompleted},
		{StepNumber: 2, Status: api.StepPending},
	}
	task.Progress = 99 // stale; store must recompute
	s.Put(task)

	got, _ := s.Get("t1")
	if got.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", got.Progress)
	}

	got.Steps[1].Status = api.StepCompleted
	s.Update(got)
	got2, _ := s.Get("t1")
	if got2.Progress != 100 {
		t.Fatalf("expected progress 100 after update, got %d", got2.Progress)
	}
}

func TestCompleteMovesPartitionAndDeleteRemoves(t *testing.T) {
	s := store.New()
	s.Put(newTask("t1", "u1"))

	if !s.Complete("t1", &api.TaskResult{Summary: "done"}, "") {
		t.Fatalf("complete should succeed for active task")
	}

	got, err := s.Get("t1")
	if err != nil {
		t.Fatalf("get after complete: %v", err)
	}
	if got.Status != api.TaskCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Result == nil || got.Result.Summary != "done" {
		t.Fatalf("result not stored: %+v", got.Result)
	}
	if got.CompletedAt == nil {
		t.Fatalf("expected completedAt stamp")
	}

	// second complete is a no-op: the task left the active partition
	if s.Complete("t1", nil, "") {
		t.Fatalf("complete on completed task should be a no-op")
	}

	if !s.Delete("t1") {
		t.Fatalf("delete should report removal")
	}
	if _, err := s.Get("t1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if s.Delete("t1") {
		t.Fatalf("second delete should be a no-op")
	}
}

func TestCompleteWithErrorMarksFailed(t *testing.T) {
	s := store.New()
	s.Put(newTask("t1", "u1"))

	s.Complete("t1", nil, "model timed out")
	got, _ := s.Get("t1")
	if got.Status != api.TaskFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestCompletePreservesCancelled(t *testing.T) {
	s := store.New()
	task := newTask("t1", "u1")
	task.Status = api.TaskCancelled
	s.Put(task)

	s.Complete("t1", nil, "")
	got, _ := s.Get("t1")
	if got.Status != api.TaskCancelled {
		t.Fatalf("complete must not overwrite cancelled, got %s", got.Status)
	}
}

func TestUpdateUnknownIsImplicitPut(t *testing.T) {
	s := store.New()
	s.Update(newTask("t-new", "u1"))

	got, err := s.Get("t-new")
	if err != nil {
		t.Fatalf("expected implicit put, got %v", err)
	}
	if got.Status != api.TaskPending {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestUpdateReopensRetriedTask(t *testing.T) {
	s := store.New()
	s.Put(newTask("t1", "u1"))
	s.Complete("t1", nil, "boom")

	got, _ := s.Get("t1")
	got.Status = api.TaskPending
	got.CompletedAt = nil
	s.Update(got)

	// reopened task is active again: Complete must find it
	if !s.Complete("t1", nil, "") {
		t.Fatalf("reopened task should be back in the active partition")
	}
}

func TestListByOwnerFilterAndOrder(t *testing.T) {
	s := store.New()
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		task := newTask(fmt.Sprintf("t%d", i), "alice")
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.Put(task)
	}
	other := newTask("t-bob", "bob")
	s.Put(other)
	// completed tasks are included too
	s.Complete("t1", nil, "")

	got := s.ListByOwner("alice")
	if len(got) != 3 {
		t.Fatalf("expected 3 tasks for alice, got %d", len(got))
	}
	for _, task := range got {
		if task.UserID != "alice" {
			t.Fatalf("task %s belongs to %s", task.ID, task.UserID)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatalf("list not ordered newest first: %v before %v", got[i-1].CreatedAt, got[i].CreatedAt)
		}
	}
	if got[0].ID != "t2" || got[2].ID != "t0" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}
