package store

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
)

var ErrNotFound = errors.New("not found")

// Store is the single in-process source of truth for task state. Tasks live
// in exactly one of two partitions: active (non-terminal) or completed.
// State is intentionally volatile; it does not survive a process restart.
//
// Writers are serialized by the mutex; readers get deep copies so callers
// never share step slices with the store.
type Store struct {
	mu        sync.RWMutex
	active    map[string]*api.Task
	completed map[string]*api.Task
}

func New() *Store {
	return &Store{
		active:    make(map[string]*api.Task),
		completed: make(map[string]*api.Task),
	}
}

// Put inserts or overwrites a task in the active partition. It always
// succeeds; any copy in the completed partition is dropped so at most one
// partition holds the id.
func (s *Store) Put(t *api.Task) {
	c := t.Clone()
	c.Progress = api.ComputeProgress(c.Steps)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.completed, c.ID)
	s.active[c.ID] = c
}

// Get returns the task from whichever partition holds it, or ErrNotFound.
func (s *Store) Get(id string) (*api.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.active[id]; ok {
		return t.Clone(), nil
	}
	if t, ok := s.completed[id]; ok {
		return t.Clone(), nil
	}
	return nil, ErrNotFound
}

// ListByOwner returns all tasks owned by userID across both partitions,
// newest first by creation time.
func (s *Store) ListByOwner(userID string) []*api.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Task
	for _, t := range s.active {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	for _, t := range s.completed {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Update replaces the stored task with the same id. A reopened task (a
// non-terminal status sitting in the completed partition, as retry
// produces) is moved back to active. Unknown ids are treated as an
// implicit Put into active rather than an error.
func (s *Store) Update(t *api.Task) {
	c := t.Clone()
	c.Progress = api.ComputeProgress(c.Steps)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[c.ID]; ok {
		s.active[c.ID] = c
		return
	}
	if _, ok := s.completed[c.ID]; ok {
		if c.Status.Terminal() {
			s.completed[c.ID] = c
			return
		}
		delete(s.completed, c.ID)
		s.active[c.ID] = c
		return
	}
	log.Printf("store: update for unknown task %s, inserting as active", c.ID)
	s.active[c.ID] = c
}

// Complete moves a task from active to completed. An error message marks
// the task failed; otherwise the status becomes completed unless the task
// was already cancelled, which is preserved. Returns false (and logs) when
// the id is not in the active partition.
func (s *Store) Complete(id string, result *api.TaskResult, errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.active[id]
	if !ok {
		log.Printf("store: complete for task %s not in active partition, ignoring", id)
		return false
	}

	now := time.Now().UTC()
	if errMsg != "" {
		t.Status = api.TaskFailed
	} else if t.Status != api.TaskCancelled {
		t.Status = api.TaskCompleted
	}
	if result != nil {
		r := *result
		t.Result = &r
	}
	t.CompletedAt = &now
	if t.StartedAt != nil {
		t.ActualDuration = now.Sub(*t.StartedAt)
	}
	t.Progress = api.ComputeProgress(t.Steps)

	delete(s.active, id)
	s.completed[id] = t
	return true
}

// Delete removes the task from both partitions. Returns false (and logs)
// when the id is absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, inActive := s.active[id]
	_, inCompleted := s.completed[id]
	if !inActive && !inCompleted {
		log.Printf("store: delete for unknown task %s, ignoring", id)
		return false
	}
	delete(s.active, id)
	delete(s.completed, id)
	return true
}
