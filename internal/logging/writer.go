package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RotateOptions bounds the server log and sets how often it reaches disk.
type RotateOptions struct {
	// MaxBytes triggers rotation before a write would grow the live file
	// past it. Zero rotates before every write to a non-empty file.
	MaxBytes int64
	// Keep is the number of rotated generations (path.1 .. path.Keep).
	// Zero keeps none: rotation truncates the live file.
	Keep int
	// SyncInterval is the minimum time between fsyncs. Zero syncs after
	// every write so `amandocs logs -f` sees each line at once.
	SyncInterval time.Duration
}

// RotatingWriter is the io.Writer behind the daemon's JSON log.
type RotatingWriter struct {
	path string
	opts RotateOptions
	now  func() time.Time

	mu       sync.Mutex
	file     *os.File
	size     int64
	lastSync time.Time
}

// OpenRotating opens path for appending, creating its directory when needed.
func OpenRotating(path string, opts RotateOptions) (*RotatingWriter, error) {
	if opts.MaxBytes < 0 || opts.Keep < 0 || opts.SyncInterval < 0 {
		return nil, fmt.Errorf("invalid rotation options for %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{path: path, opts: opts, now: time.Now}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// Write appends p, rotating first when p would push the file past MaxBytes.
// A failed rotation is reported on stderr and the line still goes to the
// current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.opts.MaxBytes {
		if err := w.rotate(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if w.file == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err == nil {
		w.maybeSync()
	}
	return n, err
}

// maybeSync fsyncs when SyncInterval has elapsed. Caller holds mu.
func (w *RotatingWriter) maybeSync() {
	now := w.now()
	if w.opts.SyncInterval > 0 && now.Sub(w.lastSync) < w.opts.SyncInterval {
		return
	}
	_ = w.file.Sync()
	w.lastSync = now
}

// Sync flushes the live file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	w.lastSync = w.now()
	return w.file.Sync()
}

// Close syncs and closes the live file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	_ = w.file.Sync()
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// rotate moves every generation up by one, drops those past Keep and starts
// a fresh live file. Caller holds mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	gens := w.generations()
	for i := len(gens) - 1; i >= 0; i-- {
		n := gens[i]
		if n >= w.opts.Keep {
			_ = os.Remove(w.generation(n))
			continue
		}
		_ = os.Rename(w.generation(n), w.generation(n+1))
	}

	if w.opts.Keep == 0 {
		if err := os.Truncate(w.path, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to truncate log file: %w", err)
		}
	} else if err := os.Rename(w.path, w.generation(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return w.open()
}

func (w *RotatingWriter) generation(n int) string {
	return w.path + "." + strconv.Itoa(n)
}

// generations returns the numeric suffixes of rotated files, ascending.
func (w *RotatingWriter) generations() []int {
	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return nil
	}
	prefix := filepath.Base(w.path) + "."
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), prefix))
		if err == nil && n > 0 {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
