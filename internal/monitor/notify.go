package monitor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// notifier turns filesystem events under watched paths into nudges. Polling
// stays authoritative; events only bring the next tick forward.
type notifier struct {
	fs    *fsnotify.Watcher
	nudge func()

	mu      sync.Mutex
	watched map[string]bool
	closed  bool
}

func newNotifier(nudge func()) (*notifier, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &notifier{fs: fsw, nudge: nudge, watched: make(map[string]bool)}, nil
}

func (n *notifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-n.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				n.nudge()
			}
		case err, ok := <-n.fs.Errors:
			if !ok {
				return
			}
			slog.Debug("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// watch syncs the fsnotify watch set with the directories of the given
// watch-lists: a directory entry is watched itself, a file entry through its
// parent.
func (n *notifier) watch(docs []WatchDocument) {
	want := make(map[string]bool)
	for _, doc := range docs {
		for _, e := range doc.Files {
			info, err := os.Stat(e.Path)
			switch {
			case err == nil && info.IsDir():
				want[e.Path] = true
			default:
				want[filepath.Dir(e.Path)] = true
			}
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for dir := range n.watched {
		if !want[dir] {
			_ = n.fs.Remove(dir)
			delete(n.watched, dir)
		}
	}
	for dir := range want {
		if n.watched[dir] {
			continue
		}
		if err := n.fs.Add(dir); err != nil {
			continue
		}
		n.watched[dir] = true
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	_ = n.fs.Close()
}
