package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

type snapshotEntry struct {
	contents []byte
	mode     fs.FileMode
	existed  bool
}

// Snapshot captures the prior state of a set of paths so they can be restored
// after a failed validation attempt.
type Snapshot struct {
	entries map[string]snapshotEntry
}

// TakeSnapshot records the current contents of each path. Missing files are
// recorded as absent and will be deleted on restore.
func TakeSnapshot(paths []string) (*Snapshot, error) {
	snap := &Snapshot{entries: make(map[string]snapshotEntry, len(paths))}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				snap.entries[path] = snapshotEntry{}
				continue
			}
			return nil, fmt.Errorf("stat %q: %w", path, err)
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		snap.entries[path] = snapshotEntry{contents: contents, mode: info.Mode(), existed: true}
	}
	return snap, nil
}

// Restore puts every snapshotted path back to its captured state. Paths that
// did not exist at snapshot time are removed.
func (s *Snapshot) Restore() error {
	var firstErr error
	for path, entry := range s.entries {
		var err error
		if entry.existed {
			err = writeAtomic(path, entry.contents)
		} else {
			err = os.Remove(path)
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
		}
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("restore %q: %w", path, err)
		}
	}
	return firstErr
}
