package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLayout(); err != nil {
		return err
	}
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.FactsFile == "" {
		return errors.New("paths.facts_file must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLayout() error {
	for key, value := range map[string]string{
		"layout.c_source_dir":     c.Layout.CSourceDir,
		"layout.rust_dir":         c.Layout.RustDir,
		"layout.rust_src_dir":     c.Layout.RustSrcDir,
		"layout.fuzz_dir":         c.Layout.FuzzDir,
		"layout.fuzz_targets_dir": c.Layout.FuzzTargetsDir,
	} {
		if strings.Contains(value, "..") {
			return fmt.Errorf("%s must stay inside the workspace", key)
		}
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if c.Generation.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/portforge/config.toml"
		}
		return fmt.Errorf("generation.api_key is required. Set PORTFORGE_API_KEY env var or edit %s (create with 'portforge config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Generation.BaseURL, "http://") && !strings.HasPrefix(c.Generation.BaseURL, "https://") {
		return errors.New("generation.base_url must be an http(s) URL")
	}
	return nil
}

func (c *Config) validateValidation() error {
	if strings.TrimSpace(c.Validation.CargoBinary) == "" {
		return errors.New("validation.cargo_binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"validation.compile_timeout_seconds": c.Validation.CompileTimeoutSeconds,
		"validation.fuzz_build_seconds":      c.Validation.FuzzBuildSeconds,
		"validation.fuzz_run_seconds":        c.Validation.FuzzRunSeconds,
	})
}

func (c *Config) validateRetry() error {
	if err := ensurePositiveMap(map[string]int{
		"retry.max_attempts":       c.Retry.MaxAttempts,
		"retry.max_infra_attempts": c.Retry.MaxInfraAttempts,
		"retry.backoff_initial_ms": c.Retry.BackoffInitialMS,
		"retry.backoff_max_ms":     c.Retry.BackoffMaxMS,
	}); err != nil {
		return err
	}
	if c.Retry.BackoffFactor <= 1 {
		return errors.New("retry.backoff_factor must be greater than 1")
	}
	if c.Retry.BackoffMaxMS < c.Retry.BackoffInitialMS {
		return errors.New("retry.backoff_max_ms must be at least retry.backoff_initial_ms")
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	if c.Orchestrator.Concurrency < 1 {
		return errors.New("orchestrator.concurrency must be >= 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
