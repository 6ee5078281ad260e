package service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/engine"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/share"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/store"
)

func newShareStore(t *testing.T) *share.Store {
	t.Helper()
	td, err := os.MkdirTemp("", "sdlc-service-test-")
	if err != nil {
		t.Fatalf("tmpdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(td) })

	db, err := sql.Open("sqlite", filepath.Join(td, "shares.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sh := share.New(db)
	if err := sh.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return sh
}

func newGenerateServer(t *testing.T, gen genai.Generator, shares *share.Store) *httptest.Server {
	t.Helper()
	st := store.New()
	eng := engine.New(st, &engine.ScriptedExecutor{})
	srv := NewServer(context.Background(), st, eng, shares, gen)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/generate"
}

func collectEvents(t *testing.T, conn *websocket.Conn) []api.StreamEvent {
	t.Helper()
	var events []api.StreamEvent
	for {
		var ev api.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v (got %d events so far)", err, len(events))
		}
		events = append(events, ev)
		if ev.Terminal() {
			return events
		}
	}
}

func TestGenerateStreamsEventsInOrder(t *testing.T) {
	shares := newShareStore(t)
	ts := newGenerateServer(t, genai.NewScripted("x", "y"), shares)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(&api.GenerateRequest{Input: "spec for a cache", TargetType: "technical_spec"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	events := collectEvents(t, conn)

	// progress events first, then content, then exactly one terminal
	var phases []string
	var content string
	var last api.StreamEvent
	for _, ev := range events {
		switch ev.Type {
		case api.EventProgress:
			if content != "" {
				t.Fatalf("progress after content: %+v", events)
			}
			phases = append(phases, ev.Phase)
		case api.EventContent:
			content += ev.Content
		}
		last = ev
	}
	if len(phases) == 0 {
		t.Fatalf("no progress events")
	}
	if last.Type != api.EventComplete {
		t.Fatalf("last event = %+v, want complete", last)
	}
	if last.FullContent != "xy" || content != "xy" {
		t.Fatalf("content mismatch: full=%q frags=%q", last.FullContent, content)
	}
	if !strings.HasPrefix(last.ShareURL, "/v1/shares/") {
		t.Fatalf("share url = %q", last.ShareURL)
	}

	// the share endpoint serves the persisted output
	resp, err := http.Get(ts.URL + last.ShareURL)
	if err != nil {
		t.Fatalf("get share: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("share status = %d", resp.StatusCode)
	}
}

func TestGenerateEmitsErrorEvent(t *testing.T) {
	gen := &genai.Scripted{Chunks: []string{"partial"}, FailAfter: 1, Err: errors.New("model unavailable")}
	ts := newGenerateServer(t, gen, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(&api.GenerateRequest{Input: "x", TargetType: "business_analysis"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	events := collectEvents(t, conn)
	last := events[len(events)-1]
	if last.Type != api.EventError || last.Error != "model unavailable" {
		t.Fatalf("terminal event = %+v, want error", last)
	}
}

func TestGetShareNotFound(t *testing.T) {
	ts := newGenerateServer(t, genai.NewScripted("x"), newShareStore(t))
	resp, err := http.Get(ts.URL + "/v1/shares/" + "0000")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
