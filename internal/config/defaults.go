package config

// Default configuration values.
const (
	DefaultBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel          = "anthropic/claude-sonnet-4"
	DefaultMaxAttempts    = 10
	DefaultMaxInfra       = 3
	DefaultFuzzBuildSecs  = 60
	DefaultFuzzRunSecs    = 10
	DefaultCompileSecs    = 300
	DefaultGenTimeoutSecs = 300
	DefaultBackoffInitMS  = 200
	DefaultBackoffMaxMS   = 60000
	DefaultBackoffFactor  = 2.0
	DefaultConcurrency    = 4
)

// Default creates a Config with sensible baked-in values. Callers still need
// to set Paths.WorkspaceDir and Paths.FactsFile before use.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir: "~/.local/share/portforge/logs",
		},
		Layout: Layout{
			CSourceDir:     "c",
			RustDir:        "rust",
			RustSrcDir:     "src",
			FuzzDir:        "fuzz",
			FuzzTargetsDir: "fuzz_targets",
		},
		Facts: Facts{
			Include: []string{"**/*.c", "**/*.h"},
		},
		Generation: Generation{
			BaseURL:        DefaultBaseURL,
			Model:          DefaultModel,
			TimeoutSeconds: DefaultGenTimeoutSecs,
		},
		Validation: Validation{
			CargoBinary:           "cargo",
			CompileTimeoutSeconds: DefaultCompileSecs,
			FuzzBuildSeconds:      DefaultFuzzBuildSecs,
			FuzzRunSeconds:        DefaultFuzzRunSecs,
		},
		Retry: Retry{
			MaxAttempts:      DefaultMaxAttempts,
			MaxInfraAttempts: DefaultMaxInfra,
			BackoffInitialMS: DefaultBackoffInitMS,
			BackoffMaxMS:     DefaultBackoffMaxMS,
			BackoffFactor:    DefaultBackoffFactor,
		},
		Orchestrator: Orchestrator{
			Concurrency: DefaultConcurrency,
		},
		Logging: Logging{
			Format: "console",
			Level:  "info",
		},
	}
}
