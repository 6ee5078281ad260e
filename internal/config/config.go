package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Poll      PollConfig      `toml:"poll"`
	Generator GeneratorConfig `toml:"generator"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type PollConfig struct {
	IntervalMS int `toml:"interval_ms"`
	MaxPolls   int `toml:"max_polls"`
}

type GeneratorConfig struct {
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `toml:"otlp_endpoint"`
	Insecure     bool   `toml:"insecure"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Host: "127.0.0.1", Port: 8690},
		Poll:      PollConfig{IntervalMS: 2000, MaxPolls: 300},
		Generator: GeneratorConfig{Model: "claude-3-5-sonnet-20241022", MaxTokens: 4096},
		Telemetry: TelemetryConfig{},
	}
}

var (
	ErrInvalid = errors.New("invalid config")
)

type LoadResult struct {
	Config     Config
	Found      bool
	Path       string
	ParseError error
}

// Load reads .sdlc/config.toml under root. A missing file yields defaults;
// a malformed one yields defaults plus ParseError so callers can warn and
// keep going.
func Load(root string) LoadResult {
	res := LoadResult{Config: Default()}
	path := filepath.Join(root, ".sdlc", "config.toml")
	res.Path = path

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res
		}
		res.ParseError = err
		return res
	}

	res.Found = true
	var parsed Config
	if err := toml.Unmarshal(b, &parsed); err != nil {
		res.ParseError = fmt.Errorf("%w: %v", ErrInvalid, err)
		return res
	}

	res.Config = merge(Default(), parsed)
	return res
}

func merge(def Config, cfg Config) Config {
	// Server
	if cfg.Server.Host != "" {
		def.Server.Host = cfg.Server.Host
	}
	if cfg.Server.Port != 0 {
		def.Server.Port = cfg.Server.Port
	}
	// Poll
	if cfg.Poll.IntervalMS != 0 {
		def.Poll.IntervalMS = cfg.Poll.IntervalMS
	}
	if cfg.Poll.MaxPolls != 0 {
		def.Poll.MaxPolls = cfg.Poll.MaxPolls
	}
	// Generator
	if cfg.Generator.Model != "" {
		def.Generator.Model = cfg.Generator.Model
	}
	if cfg.Generator.MaxTokens != 0 {
		def.Generator.MaxTokens = cfg.Generator.MaxTokens
	}
	// Telemetry
	if cfg.Telemetry.OTLPEndpoint != "" {
		def.Telemetry.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	def.Telemetry.Insecure = cfg.Telemetry.Insecure
	return def
}
