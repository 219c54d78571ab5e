package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"handout/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "handout", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Pipeline.SimilarityThreshold != 0.85 {
		t.Fatalf("unexpected similarity threshold: %v", cfg.Pipeline.SimilarityThreshold)
	}
	if cfg.Pipeline.SampleOffsetSeconds != 0.5 {
		t.Fatalf("unexpected sample offset: %v", cfg.Pipeline.SampleOffsetSeconds)
	}
	if cfg.Acquire.Variant != "lowest" {
		t.Fatalf("unexpected variant: %q", cfg.Acquire.Variant)
	}
	if cfg.CacheTTL().Hours() != 168 {
		t.Fatalf("expected 7 day cache ttl, got %v", cfg.CacheTTL())
	}
	if cfg.API.Bind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if err := cfg.ValidateAI(); err == nil {
		t.Fatal("expected ValidateAI to fail without keys")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
	if filepath.Dir(cfg.JobsDBPath()) != cfg.Paths.StateDir {
		t.Fatalf("jobs db should live in state dir, got %q", cfg.JobsDBPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "handout.toml")

	type payload struct {
		Pipeline struct {
			SimilarityThreshold float64 `toml:"similarity_threshold"`
		} `toml:"pipeline"`
		Acquire struct {
			Variant string `toml:"variant"`
		} `toml:"acquire"`
		Storage struct {
			Prefix string `toml:"prefix"`
		} `toml:"storage"`
		LLM struct {
			APIKey string `toml:"api_key"`
		} `toml:"llm"`
	}
	custom := payload{}
	custom.Pipeline.SimilarityThreshold = 0.9
	custom.Acquire.Variant = " Highest "
	custom.Storage.Prefix = "/handouts"
	custom.LLM.APIKey = "file-key"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Pipeline.SimilarityThreshold != 0.9 {
		t.Fatalf("expected threshold override, got %v", cfg.Pipeline.SimilarityThreshold)
	}
	if cfg.Acquire.Variant != "highest" {
		t.Fatalf("expected normalized variant, got %q", cfg.Acquire.Variant)
	}
	if cfg.Storage.Prefix != "handouts/" {
		t.Fatalf("expected normalized prefix, got %q", cfg.Storage.Prefix)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Fatalf("expected file key to win over env, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadRejectsMissingExplicitPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent", "config.toml")
	_, _, _, err := config.Load(missing)
	if !errors.Is(err, config.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestEnvFallbacksForAPIKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "env-router")
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("HANDOUT_API_TOKEN_SECRET", "env-secret")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-router" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Transcription.APIKey != "env-openai" {
		t.Errorf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.API.TokenSecret != "env-secret" {
		t.Errorf("expected token secret from env, got %q", cfg.API.TokenSecret)
	}
	if err := cfg.ValidateAI(); err != nil {
		t.Errorf("ValidateAI: %v", err)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	written, err := config.WriteSample(path, false)
	if err != nil || written != path {
		t.Fatalf("WriteSample = %q, %v", written, err)
	}
	if _, err := config.WriteSample(path, false); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist for existing sample, got %v", err)
	}
	if _, err := config.WriteSample(path, true); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "similarity_threshold") {
		t.Fatalf("sample config missing pipeline section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.WorkDir, "handout") {
		t.Fatalf("expected work dir to contain handout, got %q", cfg.Paths.WorkDir)
	}
	if cfg.Cache.TTLHours != 168 {
		t.Fatalf("expected sample ttl 168, got %d", cfg.Cache.TTLHours)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"threshold above one", func(c *config.Config) { c.Pipeline.SimilarityThreshold = 1.5 }},
		{"zero scale", func(c *config.Config) { c.Pipeline.ScaleFactor = 0 }},
		{"jpeg quality", func(c *config.Config) { c.Pipeline.JPEGQuality = 101 }},
		{"variant", func(c *config.Config) { c.Acquire.Variant = "middle" }},
		{"dynamodb without table", func(c *config.Config) {
			c.Cache.Backend = "dynamodb"
			c.Cache.DynamoDBRegion = "us-east-1"
		}},
		{"s3 without bucket", func(c *config.Config) {
			c.Storage.Backend = "s3"
			c.Storage.Region = "us-east-1"
		}},
		{"unknown workers backend", func(c *config.Config) { c.Workers.Backend = "threads" }},
		{"zero max jobs", func(c *config.Config) { c.Workers.MaxJobs = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
