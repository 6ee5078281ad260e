package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/durdan/dd-sdlc-ai-sub004/internal/config"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/engine"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/genai"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/service"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/share"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/store"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/telemetry"
	"github.com/durdan/dd-sdlc-ai-sub004/internal/version"

	_ "modernc.org/sqlite"
)

// overridable in tests
var (
	dotenvLoad    = godotenv.Load
	telemetryInit = telemetry.Init
	newGenerator  = func(cfg config.GeneratorConfig) (genai.Generator, error) {
		return genai.NewAnthropic(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model, cfg.MaxTokens)
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, addr, shutdown, err := setup(ctx)
	if err != nil {
		log.Fatalf("setup: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	httpSrv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(sctx)
	}()

	log.Printf("sdlcd %s (%s) listening on http://%s", version.Version, version.Commit, addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
}

// setup builds the full service: config, telemetry, share store, generator,
// task engine and HTTP handler. The returned shutdown flushes telemetry and
// closes the share database.
func setup(ctx context.Context) (http.Handler, string, func(context.Context) error, error) {
	// .env is optional
	_ = dotenvLoad()

	root, err := os.Getwd()
	if err != nil {
		return nil, "", nil, err
	}
	res := config.Load(root)
	if res.ParseError != nil {
		log.Printf("config: %s: %v (using defaults)", res.Path, res.ParseError)
	}
	cfg := res.Config

	telShutdown := func(context.Context) error { return nil }
	if sd, err := telemetryInit(ctx, telemetry.Config{
		ServiceName:    "sdlcd",
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
	}); err != nil {
		log.Printf("telemetry disabled: %v", err)
	} else {
		telShutdown = sd
	}

	dbPath, err := ensureDBPath(root)
	if err != nil {
		return nil, "", nil, err
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, "", nil, err
	}
	shares := share.New(db)
	if err := shares.Init(); err != nil {
		db.Close()
		return nil, "", nil, err
	}

	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		db.Close()
		return nil, "", nil, err
	}

	st := store.New()
	eng := engine.New(st, engine.NewGeneratorExecutor(gen))
	srv := service.NewServer(ctx, st, eng, shares, gen)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	shutdown := func(sctx context.Context) error {
		err := telShutdown(sctx)
		if cerr := db.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return srv.Handler(), addr, shutdown, nil
}

func ensureDBPath(root string) (string, error) {
	dir := filepath.Join(root, ".sdlc")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "shares.db"), nil
}
