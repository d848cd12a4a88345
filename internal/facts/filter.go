package facts

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects symbol records by source path. Include patterns are
// doublestar globs; an empty include list matches everything. Exclude wins
// over include.
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether a source path passes the filter.
func (f Filter) Match(path string) (bool, error) {
	normalized := filepath.ToSlash(path)

	included := len(f.Include) == 0
	for _, pattern := range f.Include {
		ok, err := doublestar.Match(pattern, normalized)
		if err != nil {
			return false, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		if ok {
			included = true
			break
		}
	}
	if !included {
		return false, nil
	}

	for _, pattern := range f.Exclude {
		ok, err := doublestar.Match(pattern, normalized)
		if err != nil {
			return false, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}
