package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	FactsFile    string `toml:"facts_file"`
	LogDir       string `toml:"log_dir"`
}

// Layout describes where C sources and generated Rust artifacts live inside
// the workspace.
type Layout struct {
	CSourceDir     string `toml:"c_source_dir"`
	CSourceSubdir  string `toml:"c_source_subdir"`
	RustDir        string `toml:"rust_dir"`
	RustSrcDir     string `toml:"rust_src_dir"`
	FuzzDir        string `toml:"fuzz_dir"`
	FuzzTargetsDir string `toml:"fuzz_targets_dir"`
}

// Facts controls parsed-facts ingestion.
type Facts struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Generation contains the code-generation collaborator connection settings.
type Generation struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Validation contains the external compile and differential-test settings.
type Validation struct {
	CargoBinary           string `toml:"cargo_binary"`
	CompileTimeoutSeconds int    `toml:"compile_timeout_seconds"`
	FuzzBuildSeconds      int    `toml:"fuzz_build_seconds"`
	FuzzRunSeconds        int    `toml:"fuzz_run_seconds"`
}

// Retry bounds the per-unit attempt budgets.
type Retry struct {
	MaxAttempts      int     `toml:"max_attempts"`
	MaxInfraAttempts int     `toml:"max_infra_attempts"`
	BackoffInitialMS int     `toml:"backoff_initial_ms"`
	BackoffMaxMS     int     `toml:"backoff_max_ms"`
	BackoffFactor    float64 `toml:"backoff_factor"`
}

// Orchestrator contains scheduling configuration.
type Orchestrator struct {
	Concurrency int `toml:"concurrency"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for portforge.
//
// Configuration sections by subsystem:
//   - Paths: workspace, facts file, and log directories
//   - Layout: C source and Rust artifact locations inside the workspace
//   - Facts: include/exclude globs over source file paths
//   - Generation: collaborator API connection settings
//   - Validation: cargo binary and compile/fuzz timeouts
//   - Retry: defect and infrastructure attempt budgets with backoff
//   - Orchestrator: concurrency limit
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Layout       Layout       `toml:"layout"`
	Facts        Facts        `toml:"facts"`
	Generation   Generation   `toml:"generation"`
	Validation   Validation   `toml:"validation"`
	Retry        Retry        `toml:"retry"`
	Orchestrator Orchestrator `toml:"orchestrator"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/portforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file existed at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("portforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for a run.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CheckpointDBPath returns the path of the SQLite checkpoint database.
func (c *Config) CheckpointDBPath() string {
	return filepath.Join(c.Paths.LogDir, "checkpoints.db")
}

// CSourcePath returns the directory holding C sources to port.
func (c *Config) CSourcePath() string {
	path := filepath.Join(c.Paths.WorkspaceDir, c.Layout.CSourceDir)
	if c.Layout.CSourceSubdir != "" {
		path = filepath.Join(path, c.Layout.CSourceSubdir)
	}
	return path
}

// RustRootPath returns the Rust project root inside the workspace.
func (c *Config) RustRootPath() string {
	return filepath.Join(c.Paths.WorkspaceDir, c.Layout.RustDir)
}

// RustSrcPath returns the Rust source directory.
func (c *Config) RustSrcPath() string {
	return filepath.Join(c.RustRootPath(), c.Layout.RustSrcDir)
}

// RustFFIPath returns the path of the FFI bindings file.
func (c *Config) RustFFIPath() string {
	return filepath.Join(c.RustSrcPath(), "ffi.rs")
}

// RustSrcPathForFile returns the Rust module path for a C source file stem.
func (c *Config) RustSrcPathForFile(cFile string) string {
	stem := strings.TrimSuffix(filepath.Base(cFile), filepath.Ext(cFile))
	if stem == "" {
		return filepath.Join(c.RustSrcPath(), "lib.rs")
	}
	return filepath.Join(c.RustSrcPath(), stem+".rs")
}

// FuzzTargetsPath returns the directory holding differential fuzz targets.
func (c *Config) FuzzTargetsPath() string {
	return filepath.Join(c.RustRootPath(), c.Layout.FuzzDir, c.Layout.FuzzTargetsDir)
}

// FuzzTargetPathForSymbol returns the fuzz target path for a symbol.
func (c *Config) FuzzTargetPathForSymbol(symbol string) string {
	return filepath.Join(c.FuzzTargetsPath(), "fuzz_"+symbol+".rs")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
