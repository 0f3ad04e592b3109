package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths_UseDataDirOverride(t *testing.T) {
	// Given: a data dir override
	dir := t.TempDir()
	t.Setenv("AMANDOCS_DATA_DIR", dir)

	// Then: log paths live beneath it
	assert.Equal(t, dir, DefaultDataDir())
	assert.Equal(t, filepath.Join(dir, "logs"), DefaultLogDir())
	assert.Equal(t, filepath.Join(dir, "logs", "server.log"), DefaultLogPath())
}

func TestDefaultDataDir_FallsBackToHome(t *testing.T) {
	t.Setenv("AMANDOCS_DATA_DIR", "")
	assert.True(t, strings.HasSuffix(DefaultDataDir(), ".amandocs"))
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.WriteToStderr)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a config pointing at a temp file
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")
	cfg := Config{Level: "debug", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging through the returned logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("hello", slog.String("collection", "default"))
	cleanup()

	// Then: the file holds a JSON line with the attribute
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"hello"`)
	assert.Contains(t, string(content), `"collection":"default"`)
}

func TestSetup_RespectsLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	require.NoError(t, err)
	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "dropped")
	assert.Contains(t, string(content), "kept")
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestFindLogFile(t *testing.T) {
	t.Setenv("AMANDOCS_DATA_DIR", t.TempDir())

	_, err := FindLogFile("")
	assert.Error(t, err)

	_, err = FindLogFile("/nonexistent/server.log")
	assert.Error(t, err)

	explicit := filepath.Join(t.TempDir(), "x.log")
	require.NoError(t, os.WriteFile(explicit, []byte("{}\n"), 0o644))
	got, err := FindLogFile(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestRotatingWriter_Rotation(t *testing.T) {
	// Given: a writer that rotates before any write to a non-empty file
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	w, err := OpenRotating(logPath, RotateOptions{Keep: 3})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing twice
	data := bytes.Repeat([]byte("x"), 2048)
	_, err = w.Write(data)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)

	// Then: the live file and .1 exist
	assert.FileExists(t, logPath)
	assert.FileExists(t, logPath+".1")
}

func TestRotatingWriter_MaxFilesLimit(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "maxfiles.log")
	w, err := OpenRotating(logPath, RotateOptions{Keep: 2})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	data := bytes.Repeat([]byte("y"), 1024)
	for i := 0; i < 5; i++ {
		_, _ = w.Write(data)
	}

	assert.FileExists(t, logPath+".1")
	assert.NoFileExists(t, logPath+".3")
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := OpenRotating(logPath, RotateOptions{MaxBytes: 10 << 20, Keep: 3})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = fmt.Fprintf(w, `{"id":%d,"iter":%d}`+"\n", id, j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Sync())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 1000, strings.Count(string(content), "\n"))
}

func TestRotatingWriter_KeepZeroTruncates(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "truncate.log")
	w, err := OpenRotating(logPath, RotateOptions{MaxBytes: 16})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("first line 0123\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(content))
	assert.NoFileExists(t, logPath+".1")
}

func TestRotatingWriter_SyncInterval(t *testing.T) {
	// Given: a writer that syncs at most once a minute on a fake clock
	logPath := filepath.Join(t.TempDir(), "sync.log")
	w, err := OpenRotating(logPath, RotateOptions{MaxBytes: 1 << 20, Keep: 1, SyncInterval: time.Minute})
	require.NoError(t, err)
	defer func() { _ = w.Close() }()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	// When: writing twice within the interval, then once after it
	_, _ = w.Write([]byte("a\n"))
	first := w.lastSync
	clock = clock.Add(time.Second)
	_, _ = w.Write([]byte("b\n"))
	second := w.lastSync
	clock = clock.Add(time.Minute)
	_, _ = w.Write([]byte("c\n"))

	// Then: only the first and the late write synced
	assert.Equal(t, first, second)
	assert.Equal(t, clock, w.lastSync)
}

func TestRotatingWriter_RejectsNegativeOptions(t *testing.T) {
	_, err := OpenRotating(filepath.Join(t.TempDir(), "x.log"), RotateOptions{Keep: -1})
	assert.Error(t, err)
}

func TestViewer_TailFiltersByLevelAndPattern(t *testing.T) {
	// Given: a log with mixed levels
	logPath := filepath.Join(t.TempDir(), "server.log")
	lines := []string{
		`{"time":"2026-01-02T10:00:00Z","level":"DEBUG","msg":"tick","added":0}`,
		`{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"uploaded","path":"a.txt"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"upload failed","path":"b.txt"}`,
		`not json`,
	}
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	// When: tailing at info level
	v := NewViewer(ViewerConfig{Level: "info", NoColor: true}, &bytes.Buffer{})
	entries, err := v.Tail(logPath, 10)
	require.NoError(t, err)

	// Then: debug is filtered, invalid lines default to info and pass
	require.Len(t, entries, 3)
	assert.Equal(t, "uploaded", entries[0].Msg)
	assert.Equal(t, "a.txt", entries[0].Attrs["path"])
	assert.False(t, entries[2].IsValid)

	// When: filtering by pattern
	v = NewViewer(ViewerConfig{Pattern: regexp.MustCompile(`b\.txt`), NoColor: true}, &bytes.Buffer{})
	entries, err = v.Tail(logPath, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "upload failed", entries[0].Msg)
}

func TestViewer_TailKeepsLastN(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&sb, `{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"m%d"}`+"\n", i)
	}
	require.NoError(t, os.WriteFile(logPath, []byte(sb.String()), 0o644))

	entries, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(logPath, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "m17", entries[0].Msg)
	assert.Equal(t, "m19", entries[2].Msg)
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := LogEntry{
		Time:    time.Date(2026, 1, 2, 10, 30, 45, 123000000, time.UTC),
		Level:   "WARN",
		Msg:     "queue full",
		Attrs:   map[string]any{"remaining": 0, "capacity": 10},
		IsValid: true,
	}

	assert.Equal(t, "10:30:45.123 WARN  queue full capacity=10 remaining=0", v.FormatEntry(entry))
	assert.Equal(t, "raw line", v.FormatEntry(LogEntry{Raw: "raw line"}))
}

func TestViewer_Follow_StreamsAppendedLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(logPath, []byte(`{"level":"INFO","msg":"old"}`+"\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries := make(chan LogEntry, 4)
	done := make(chan struct{})
	go func() {
		_ = NewViewer(ViewerConfig{}, &bytes.Buffer{}).Follow(ctx, logPath, entries)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, _ = f.WriteString(`{"level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		assert.Equal(t, "new", e.Msg)
	case <-ctx.Done():
		t.Fatal("no entry followed")
	}
	cancel()
	<-done
}
