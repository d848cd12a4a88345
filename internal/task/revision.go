package task

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"portforge/internal/artifact"
)

// describeRevision summarizes how a retry's artifact set differs from the
// previous attempt. The summary goes to the debug log so divergence between
// attempts can be inspected without keeping every generated file around.
func describeRevision(prev, next artifact.Set) string {
	if len(prev.Files) == 0 {
		return ""
	}
	prevByPath := make(map[string][]byte, len(prev.Files))
	for _, file := range prev.Files {
		prevByPath[file.Path] = file.Contents
	}

	dmp := diffmatchpatch.New()
	var parts []string
	for _, file := range next.Files {
		before, existed := prevByPath[file.Path]
		if !existed {
			parts = append(parts, fmt.Sprintf("%s: new file", file.Path))
			continue
		}
		delete(prevByPath, file.Path)
		if string(before) == string(file.Contents) {
			continue
		}
		diffs := dmp.DiffMain(string(before), string(file.Contents), false)
		inserted, deleted := 0, 0
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				inserted += len(d.Text)
			case diffmatchpatch.DiffDelete:
				deleted += len(d.Text)
			}
		}
		parts = append(parts, fmt.Sprintf("%s: +%d/-%d bytes", file.Path, inserted, deleted))
	}
	removed := make([]string, 0, len(prevByPath))
	for path := range prevByPath {
		removed = append(removed, path)
	}
	sort.Strings(removed)
	for _, path := range removed {
		parts = append(parts, fmt.Sprintf("%s: removed", path))
	}
	if len(parts) == 0 {
		return "identical to previous attempt"
	}
	return strings.Join(parts, "; ")
}
