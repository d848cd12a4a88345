package logging

import (
	"log/slog"
	"path/filepath"

	"portforge/internal/config"
)

// NewFromConfig builds the run logger described by the configuration. Records
// go to stdout and are appended to portforge.log in the configured log
// directory.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	opts := Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "portforge.log"),
		},
	}
	return New(opts)
}
