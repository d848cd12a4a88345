package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"portforge/internal/config"
)

func writeConfig(t *testing.T, dir string, mutate func(*testPayload)) string {
	t.Helper()
	payload := testPayload{}
	payload.Paths.WorkspaceDir = filepath.Join(dir, "workspace")
	payload.Paths.FactsFile = filepath.Join(dir, "workspace", "facts.json")
	payload.Paths.LogDir = filepath.Join(dir, "logs")
	payload.Generation.APIKey = "test-key"
	if mutate != nil {
		mutate(&payload)
	}
	encoded, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config payload: %v", err)
	}
	path := filepath.Join(dir, "portforge.toml")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config payload: %v", err)
	}
	return path
}

type testPayload struct {
	Paths struct {
		WorkspaceDir string `toml:"workspace_dir"`
		FactsFile    string `toml:"facts_file"`
		LogDir       string `toml:"log_dir"`
	} `toml:"paths"`
	Layout struct {
		RustDir string `toml:"rust_dir"`
	} `toml:"layout"`
	Generation struct {
		APIKey  string `toml:"api_key"`
		BaseURL string `toml:"base_url"`
		Model   string `toml:"model"`
	} `toml:"generation"`
	Retry struct {
		MaxAttempts   int     `toml:"max_attempts"`
		BackoffFactor float64 `toml:"backoff_factor"`
	} `toml:"retry"`
	Orchestrator struct {
		Concurrency int `toml:"concurrency"`
	} `toml:"orchestrator"`
	Logging struct {
		Format string `toml:"format"`
	} `toml:"logging"`
}

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, nil)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, path)
	}
	if cfg.Generation.Model != config.DefaultModel {
		t.Fatalf("unexpected model default: %q", cfg.Generation.Model)
	}
	if cfg.Generation.BaseURL != config.DefaultBaseURL {
		t.Fatalf("unexpected base url default: %q", cfg.Generation.BaseURL)
	}
	if cfg.Retry.MaxAttempts != config.DefaultMaxAttempts {
		t.Fatalf("unexpected max attempts: %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.MaxInfraAttempts != config.DefaultMaxInfra {
		t.Fatalf("unexpected infra attempts: %d", cfg.Retry.MaxInfraAttempts)
	}
	if cfg.Orchestrator.Concurrency != config.DefaultConcurrency {
		t.Fatalf("unexpected concurrency: %d", cfg.Orchestrator.Concurrency)
	}
	if cfg.Validation.FuzzBuildSeconds != config.DefaultFuzzBuildSecs {
		t.Fatalf("unexpected fuzz build budget: %d", cfg.Validation.FuzzBuildSeconds)
	}
	if cfg.Validation.FuzzRunSeconds != config.DefaultFuzzRunSecs {
		t.Fatalf("unexpected fuzz run budget: %d", cfg.Validation.FuzzRunSeconds)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
	if !filepath.IsAbs(cfg.Paths.WorkspaceDir) {
		t.Fatalf("expected absolute workspace dir, got %q", cfg.Paths.WorkspaceDir)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	info, err := os.Stat(cfg.Paths.LogDir)
	if err != nil {
		t.Fatalf("expected log dir to exist: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected %q to be a directory", cfg.Paths.LogDir)
	}
}

func TestLoadUsesEnvAPIKeyFallback(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("PORTFORGE_API_KEY", "env-key")
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Generation.APIKey = ""
	})

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Generation.APIKey != "env-key" {
		t.Fatalf("expected API key from env, got %q", cfg.Generation.APIKey)
	}
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("PORTFORGE_API_KEY", "")
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Generation.APIKey = ""
	})

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "generation.api_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsMissingWorkspace(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Paths.WorkspaceDir = ""
	})

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing workspace dir")
	}
	if !strings.Contains(err.Error(), "paths.workspace_dir") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsInvalidLoggingFormat(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Logging.Format = "xml"
	})

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid logging format")
	}
	if !strings.Contains(err.Error(), "logging.format") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsEscapingLayout(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Layout.RustDir = "../outside"
	})

	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for layout escaping the workspace")
	}
	if !strings.Contains(err.Error(), "layout.rust_dir") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadNormalizesRetryBounds(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, func(p *testPayload) {
		p.Retry.MaxAttempts = -5
		p.Retry.BackoffFactor = 0.5
	})

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Retry.MaxAttempts != config.DefaultMaxAttempts {
		t.Fatalf("expected default max attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BackoffFactor != config.DefaultBackoffFactor {
		t.Fatalf("expected default backoff factor, got %v", cfg.Retry.BackoffFactor)
	}
}

func TestPathHelpers(t *testing.T) {
	tempDir := t.TempDir()
	path := writeConfig(t, tempDir, nil)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	workspace := cfg.Paths.WorkspaceDir
	if got, want := cfg.RustSrcPath(), filepath.Join(workspace, "rust", "src"); got != want {
		t.Fatalf("unexpected rust src path: got %q want %q", got, want)
	}
	if got, want := cfg.RustFFIPath(), filepath.Join(workspace, "rust", "src", "ffi.rs"); got != want {
		t.Fatalf("unexpected ffi path: got %q want %q", got, want)
	}
	if got, want := cfg.RustSrcPathForFile("src/blocksplitter.c"), filepath.Join(workspace, "rust", "src", "blocksplitter.rs"); got != want {
		t.Fatalf("unexpected module path: got %q want %q", got, want)
	}
	if got, want := cfg.FuzzTargetPathForSymbol("ZopfliBlockSplit"), filepath.Join(workspace, "rust", "fuzz", "fuzz_targets", "fuzz_ZopfliBlockSplit.rs"); got != want {
		t.Fatalf("unexpected fuzz target path: got %q want %q", got, want)
	}
	if got, want := cfg.CheckpointDBPath(), filepath.Join(cfg.Paths.LogDir, "checkpoints.db"); got != want {
		t.Fatalf("unexpected checkpoint db path: got %q want %q", got, want)
	}
}

func TestCreateSampleWritesParseableFile(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "config.toml")

	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if _, ok := decoded["generation"]; !ok {
		t.Fatal("expected generation section in sample config")
	}
}
