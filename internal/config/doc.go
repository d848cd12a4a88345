// Package config loads, normalizes, and validates portforge configuration
// from TOML files, with environment fallbacks for secrets and path expansion
// for user-relative locations.
package config
