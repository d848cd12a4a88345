// Package artifact models the generated Rust files for a processing unit and
// applies them to the workspace. Writes go through a snapshot so a failed
// validation can put the workspace back exactly as it was.
package artifact

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// File is one generated file and its absolute destination path.
type File struct {
	Path     string
	Contents []byte
}

// Set is the complete output of one generation attempt for a unit.
type Set struct {
	UnitID string
	Files  []File
}

// Paths returns the destination paths in sorted order.
func (s Set) Paths() []string {
	paths := make([]string, len(s.Files))
	for i, file := range s.Files {
		paths[i] = file.Path
	}
	sort.Strings(paths)
	return paths
}

// Fingerprint hashes the set's paths and contents. Two sets with the same
// fingerprint produce an identical workspace state.
func (s Set) Fingerprint() string {
	hasher := blake3.New()
	for _, path := range s.Paths() {
		for _, file := range s.Files {
			if file.Path != path {
				continue
			}
			fmt.Fprintf(hasher, "%s\x00%d\x00", file.Path, len(file.Contents))
			hasher.Write(file.Contents)
		}
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Apply writes every file in the set, creating parent directories as needed.
// Each file is written to a sibling temp file and renamed into place.
func Apply(set Set) error {
	for _, file := range set.Files {
		if err := writeAtomic(file.Path, file.Contents); err != nil {
			return fmt.Errorf("apply artifact for %s: %w", set.UnitID, err)
		}
	}
	return nil
}

func writeAtomic(path string, contents []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %q: %w", path, err)
	}
	return nil
}
