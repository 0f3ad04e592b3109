package monitor

import (
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// excluder matches slash-separated paths relative to a watched directory.
type excluder struct {
	patterns []string
}

func newExcluder(patterns []string) *excluder {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			slog.Warn("invalid exclude pattern ignored", slog.String("pattern", p))
			continue
		}
		valid = append(valid, p)
	}
	return &excluder{patterns: valid}
}

func (e *excluder) match(rel string) bool {
	for _, p := range e.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// matchDir reports whether everything below dir is excluded.
func (e *excluder) matchDir(rel string) bool {
	return e.match(rel) || e.match(path.Join(rel, "x"))
}

// expand resolves entry paths to the regular files they cover. A file entry
// covers itself; a directory entry covers every non-excluded file below it.
// The result maps each file to the index of the entry that covers it; the
// first entry wins when entries overlap. Missing entries cover nothing.
func expand(entries []WatchEntry, ex *excluder) map[string]int {
	files := make(map[string]int)
	for i, entry := range entries {
		info, err := os.Stat(entry.Path)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if _, ok := files[entry.Path]; !ok {
				files[entry.Path] = i
			}
			continue
		}

		root := entry.Path
		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // skip unreadable entries
			}
			if p == root {
				return nil
			}
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if ex.matchDir(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || ex.match(rel) {
				return nil
			}
			if _, ok := files[p]; !ok {
				files[p] = i
			}
			return nil
		})
	}
	return files
}

// Diff returns added = curr − prev and deleted = prev − curr.
func Diff(prev, curr map[string]struct{}) (added, deleted []string) {
	for p := range curr {
		if _, ok := prev[p]; !ok {
			added = append(added, p)
		}
	}
	for p := range prev {
		if _, ok := curr[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	return added, deleted
}

// Modified reports whether a file changed after it was registered.
func Modified(mtime, registeredAt time.Time) bool {
	return !registeredAt.IsZero() && mtime.After(registeredAt)
}
