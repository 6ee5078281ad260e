// Package service is the HTTP surface of the daemon: task lifecycle
// endpoints, the share fetch endpoint and the websocket streaming
// channel for one-shot generations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/engine"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/share"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/store"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/stream"
)

type Server struct {
	store  *store.Store
	engine *engine.Engine
	shares *share.Store // nil disables share endpoints and links
	gen    genai.Generator

	// runCtx is the parent of every background task run, so shutting the
	// server down interrupts in-flight work.
	runCtx context.Context
}

func NewServer(ctx context.Context, st *store.Store, eng *engine.Engine, shares *share.Store, gen genai.Generator) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{store: st, engine: eng, shares: shares, gen: gen, runCtx: ctx}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /v1/tasks/{task_id}", s.handleGetTask)
	mux.HandleFunc("GET /v1/tasks", s.handleListTasks)
	mux.HandleFunc("POST /v1/tasks/{task_id}/retry", s.handleRetryTask)
	mux.HandleFunc("POST /v1/tasks/{task_id}/cancel", s.handleCancelTask)
	mux.HandleFunc("DELETE /v1/tasks/{task_id}", s.handleDeleteTask)
	mux.HandleFunc("GET /v1/shares/{share_id}", s.handleGetShare)
	mux.HandleFunc("GET /v1/generate", s.handleGenerate)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req api.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := s.engine.CreateTask(&req)
	if errors.Is(err, engine.ErrValidation) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "failed to create task", http.StatusInternalServerError)
		return
	}

	s.runAsync(task.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if err := api.ValidateID(taskID); err != nil {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}

	task, err := s.store.Get(taskID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to read task", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if err := api.ValidateID(userID); err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	tasks := s.store.ListByOwner(userID)
	if tasks == nil {
		tasks = []*api.Task{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tasks)
}

func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if err := api.ValidateID(taskID); err != nil {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}

	task, err := s.engine.Retry(taskID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, engine.ErrNotRetryable) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "failed to retry task", http.StatusInternalServerError)
		return
	}

	s.runAsync(task.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if err := api.ValidateID(taskID); err != nil {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}

	err := s.engine.Cancel(taskID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, engine.ErrAlreadyTerminal) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "failed to cancel task", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("cancelled"))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if err := api.ValidateID(taskID); err != nil {
		http.Error(w, "invalid task_id", http.StatusBadRequest)
		return
	}
	if !s.engine.Delete(taskID) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetShare(w http.ResponseWriter, r *http.Request) {
	if s.shares == nil {
		http.Error(w, "shares disabled", http.StatusNotFound)
		return
	}
	shareID := r.PathValue("share_id")
	if err := api.ValidateID(shareID); err != nil {
		http.Error(w, "invalid share_id", http.StatusBadRequest)
		return
	}

	sh, err := s.shares.Get(shareID)
	if errors.Is(err, share.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to read share", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sh)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// local-only daemon
		return true
	},
}

// handleGenerate runs one streaming generation over a websocket. The
// client sends a single request frame; the server pushes typed events and
// closes the connection after the terminal one. A client disconnect
// cancels the generation.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("generate: upgrade: %v", err)
		return
	}
	defer conn.Close()

	var req api.GenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Printf("generate: read request: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// after the request frame the client sends nothing; the read loop only
	// detects disconnects
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	var pub stream.Publisher
	if s.shares != nil {
		pub = s.shares
	}
	sess := stream.NewSession(-1)
	go stream.NewProducer(s.gen, pub).Run(ctx, sess, &req)

	for ev := range sess.Events() {
		if err := conn.WriteJSON(ev); err != nil {
			cancel()
			// drain so the producer can finish and close the channel
			for range sess.Events() {
			}
			return
		}
	}
}

func (s *Server) runAsync(id string) {
	go func() {
		if err := s.engine.Run(s.runCtx, id); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("task %s: run finished with error: %v", id, err)
		}
	}()
}
