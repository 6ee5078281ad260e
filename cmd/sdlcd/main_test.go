package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/api"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/config"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/telemetry"
)

func TestEndToEnd_EmitsTaskSpan(t *testing.T) {
	// run in a scratch dir so .sdlc lands there
	d, err := os.MkdirTemp("", "sdlcd-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	oldWd, _ := os.Getwd()
	_ = os.Chdir(d)
	defer os.Chdir(oldWd)

	// override dotenvLoad to no-op
	oldDot := dotenvLoad
	dotenvLoad = func(...string) error { return nil }
	defer func() { dotenvLoad = oldDot }()

	// replace the real generator with a scripted one
	oldGen := newGenerator
	newGenerator = func(config.GeneratorConfig) (genai.Generator, error) {
		return genai.NewScripted("step output"), nil
	}
	defer func() { newGenerator = oldGen }()

	// install an in-memory exporter via the telemetryInit override
	exp := tracetest.NewInMemoryExporter()
	res, err := sdkresource.New(context.Background(), sdkresource.WithAttributes(
		attribute.String("service.name", "sdlcd-test"),
		attribute.String("service.version", "v0"),
	))
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp)),
	)
	prev := otel.GetTracerProvider()
	oldInit := telemetryInit
	telemetryInit = func(ctx context.Context, cfg telemetry.Config) (func(context.Context) error, error) {
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}
	defer func() {
		telemetryInit = oldInit
		otel.SetTracerProvider(prev)
	}()

	handler, addr, shutdown, err := setup(context.Background())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer shutdown(context.Background())
	if addr == "" {
		t.Fatalf("expected listen address")
	}

	srv := httptest.NewServer(handler)
	defer srv.Close()

	// create task
	body := api.CreateTaskRequest{
		UserID:      "u1",
		Description: "wire up the cache",
		Repository:  api.Repository{Owner: "durdan", Name: "demo"},
	}
	b, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL+"/v1/tasks", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post create: %v", err)
	}
	var created api.Task
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	resp.Body.Close()

	// poll for completion
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("task did not reach terminal state in time")
		}
		resp, err := http.Get(srv.URL + "/v1/tasks/" + created.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		var got api.Task
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode task: %v", err)
		}
		resp.Body.Close()
		if got.Status.Terminal() {
			if got.Status != api.TaskCompleted {
				t.Fatalf("task finished as %s", got.Status)
			}
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush: %v", err)
	}
	found := false
	for _, sp := range exp.GetSpans() {
		if sp.Name == "sdlc.task" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a task span to be exported")
	}
}
