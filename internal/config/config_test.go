package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Missing(t *testing.T) {
	d, err := os.MkdirTemp("", "sdlc-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)

	res := Load(d)
	if res.Found {
		t.Fatalf("expected not found")
	}
	if res.ParseError != nil {
		t.Fatalf("unexpected parse error: %v", res.ParseError)
	}
	// defaults
	def := Default()
	if res.Config.Server.Port != def.Server.Port {
		t.Fatalf("unexpected default port: %d", res.Config.Server.Port)
	}
	if res.Config.Poll.MaxPolls != def.Poll.MaxPolls {
		t.Fatalf("unexpected default max polls: %d", res.Config.Poll.MaxPolls)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	d, err := os.MkdirTemp("", "sdlc-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	dir := filepath.Join(d, ".sdlc")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9999

[poll]
interval_ms = 250
max_polls = 40

[generator]
max_tokens = 2048
`
	if err := os.WriteFile(cfg, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	res := Load(d)
	if !res.Found {
		t.Fatalf("expected found true")
	}
	if res.ParseError != nil {
		t.Fatalf("unexpected parse error: %v", res.ParseError)
	}
	if res.Config.Server.Port != 9999 {
		t.Fatalf("port not applied: %d", res.Config.Server.Port)
	}
	if res.Config.Poll.IntervalMS != 250 || res.Config.Poll.MaxPolls != 40 {
		t.Fatalf("poll overrides not applied: %+v", res.Config.Poll)
	}
	if res.Config.Generator.MaxTokens != 2048 {
		t.Fatalf("max tokens not applied: %d", res.Config.Generator.MaxTokens)
	}
	// untouched sections keep defaults
	if res.Config.Server.Host != Default().Server.Host {
		t.Fatalf("host default lost: %q", res.Config.Server.Host)
	}
	if res.Config.Generator.Model != Default().Generator.Model {
		t.Fatalf("model default lost: %q", res.Config.Generator.Model)
	}
}

func TestLoad_InvalidToml(t *testing.T) {
	d, err := os.MkdirTemp("", "sdlc-config-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(d)
	dir := filepath.Join(d, ".sdlc")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "config.toml")
	// invalid TOML
	if err := os.WriteFile(cfg, []byte("x = [1,\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := Load(d)
	if !res.Found {
		t.Fatalf("expected found true")
	}
	if res.ParseError == nil {
		t.Fatalf("expected parse error")
	}
	// falls back to defaults
	if res.Config.Server.Port != Default().Server.Port {
		t.Fatalf("expected default port on parse error, got %d", res.Config.Server.Port)
	}
}
