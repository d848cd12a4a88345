package config

import (
	"os"
	"strings"
)

// normalize expands paths, applies environment fallbacks, and fills empty
// fields with defaults so Validate only has to check invariants.
func (c *Config) normalize() error {
	def := Default()

	for _, field := range []*string{&c.Paths.WorkspaceDir, &c.Paths.FactsFile, &c.Paths.LogDir} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}
	if c.Paths.LogDir == "" {
		expanded, err := expandPath(def.Paths.LogDir)
		if err != nil {
			return err
		}
		c.Paths.LogDir = expanded
	}

	if strings.TrimSpace(c.Layout.CSourceDir) == "" {
		c.Layout.CSourceDir = def.Layout.CSourceDir
	}
	if strings.TrimSpace(c.Layout.RustDir) == "" {
		c.Layout.RustDir = def.Layout.RustDir
	}
	if strings.TrimSpace(c.Layout.RustSrcDir) == "" {
		c.Layout.RustSrcDir = def.Layout.RustSrcDir
	}
	if strings.TrimSpace(c.Layout.FuzzDir) == "" {
		c.Layout.FuzzDir = def.Layout.FuzzDir
	}
	if strings.TrimSpace(c.Layout.FuzzTargetsDir) == "" {
		c.Layout.FuzzTargetsDir = def.Layout.FuzzTargetsDir
	}

	if len(c.Facts.Include) == 0 {
		c.Facts.Include = def.Facts.Include
	}

	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = strings.TrimSpace(os.Getenv("PORTFORGE_API_KEY"))
	}
	if strings.TrimSpace(c.Generation.BaseURL) == "" {
		c.Generation.BaseURL = def.Generation.BaseURL
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		c.Generation.Model = def.Generation.Model
	}
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = def.Generation.TimeoutSeconds
	}

	if strings.TrimSpace(c.Validation.CargoBinary) == "" {
		c.Validation.CargoBinary = def.Validation.CargoBinary
	}
	if c.Validation.CompileTimeoutSeconds <= 0 {
		c.Validation.CompileTimeoutSeconds = def.Validation.CompileTimeoutSeconds
	}
	if c.Validation.FuzzBuildSeconds <= 0 {
		c.Validation.FuzzBuildSeconds = def.Validation.FuzzBuildSeconds
	}
	if c.Validation.FuzzRunSeconds <= 0 {
		c.Validation.FuzzRunSeconds = def.Validation.FuzzRunSeconds
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.MaxInfraAttempts <= 0 {
		c.Retry.MaxInfraAttempts = def.Retry.MaxInfraAttempts
	}
	if c.Retry.BackoffInitialMS <= 0 {
		c.Retry.BackoffInitialMS = def.Retry.BackoffInitialMS
	}
	if c.Retry.BackoffMaxMS <= 0 {
		c.Retry.BackoffMaxMS = def.Retry.BackoffMaxMS
	}
	if c.Retry.BackoffFactor <= 1 {
		c.Retry.BackoffFactor = def.Retry.BackoffFactor
	}

	if c.Orchestrator.Concurrency <= 0 {
		c.Orchestrator.Concurrency = def.Orchestrator.Concurrency
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}

	return nil
}
