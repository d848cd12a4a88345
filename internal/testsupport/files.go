package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"portforge/internal/facts"
)

// WriteContents writes a file for tests, creating parent directories.
func WriteContents(t testing.TB, path string, contents []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteFacts serializes symbol records into a facts file at the given path.
func WriteFacts(t testing.TB, path string, records []facts.Record) {
	t.Helper()

	payload := struct {
		Symbols []facts.Record `json:"symbols"`
	}{Symbols: records}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		t.Fatalf("marshal facts: %v", err)
	}
	WriteContents(t, path, data)
}
