package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/queue"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Store.DataDir = t.TempDir()
	cfg.Store.FlushInterval = time.Hour
	cfg.Monitor.PollInterval = time.Hour
	cfg.Monitor.RetryDelay = time.Millisecond
	cfg.Monitor.UploadsPerSecond = 1000
	cfg.Queue.PopTimeout = 10 * time.Millisecond
	cfg.Queue.StopTimeout = 2 * time.Second
	return cfg
}

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(context.Background(), Options{
		Config:   testConfig(t),
		Embedder: embed.NewStaticEmbedder(64),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func runService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func waitTerminal(t *testing.T, s *Service, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := s.Queue().Snapshot()
		return snap.Completed+snap.Failed >= n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize

	_, err := New(context.Background(), Options{Config: cfg, Embedder: embed.NewStaticEmbedder(8)})

	assert.Error(t, err)
}

func TestService_UploadSearchDelete(t *testing.T) {
	// Given: a running service and a document on disk
	s := newService(t)
	runService(t, s)
	ctx := context.Background()
	text := strings.Repeat("General ledger entries for the fiscal year. ", 12) + "Zebra migration telemetry appears only here."
	path := writeDoc(t, t.TempDir(), "report.txt", text)

	// When: uploading it
	resp, err := s.Upload(ctx, UploadRequest{FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.ItemID)
	waitTerminal(t, s, 1)

	// Then: it is indexed and searchable
	docs, err := s.Documents(ctx, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report.txt", docs[0].FileName)
	assert.Greater(t, docs[0].ChunkCount, 1)

	hits, err := s.Search(ctx, SearchRequest{Query: "Zebra migration telemetry", K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, path, hits[0].Path)
	assert.Greater(t, hits[0].Score, float32(0))

	// And: deleting it empties the collection
	removed, err := s.DeleteDocuments(ctx, "", []string{path})
	require.NoError(t, err)
	assert.Greater(t, removed, 0)
	docs, err = s.Documents(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
	hits, err = s.Search(ctx, SearchRequest{Query: "Zebra migration telemetry", K: 1})
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, s.Monitor().Holds(), "holds are released after each operation")
}

func TestService_UploadContentIsStored(t *testing.T) {
	s := newService(t)
	runService(t, s)
	ctx := context.Background()

	resp, err := s.Upload(ctx, UploadRequest{
		Collection: "notes",
		FileName:   "../../escape.md",
		Content:    []byte("# Notes\n\nUploaded through the socket."),
	})
	require.NoError(t, err)
	waitTerminal(t, s, 1)

	stored := filepath.Join(s.Config().UploadsDir(), "escape.md")
	assert.FileExists(t, stored)
	docs, err := s.Documents(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, stored, docs[0].FilePath)
	assert.Contains(t, resp.Message, "escape.md")
}

func TestService_UploadValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Upload(ctx, UploadRequest{})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))

	_, err = s.Upload(ctx, UploadRequest{FilePath: filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorIs(t, err, amerrors.ErrFileNotFound)

	_, err = s.Upload(ctx, UploadRequest{Collection: "bad/name", FilePath: writeDoc(t, t.TempDir(), "a.txt", "x")})
	require.NoError(t, err, "collection names are validated when the item is processed")
}

func TestService_UploadBeyondCapacity(t *testing.T) {
	// Given: a service whose worker is not running and capacity 1
	cfg := testConfig(t)
	cfg.Queue.Capacity = 1
	s, err := New(context.Background(), Options{Config: cfg, Embedder: embed.NewStaticEmbedder(8)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	path := writeDoc(t, t.TempDir(), "a.txt", "hello world")

	_, err = s.Upload(context.Background(), UploadRequest{FilePath: path})
	require.NoError(t, err)

	// When
	_, err = s.Upload(context.Background(), UploadRequest{FilePath: path})

	// Then
	assert.ErrorIs(t, err, amerrors.ErrCapacityExceeded)
	assert.Equal(t, "0", amerrors.GetDetail(err, "remaining_capacity"))
}

func TestService_UploadContentBeyondCapacityStoresNothing(t *testing.T) {
	// Given: a full queue with capacity 1 and no running worker
	cfg := testConfig(t)
	cfg.Queue.Capacity = 1
	s, err := New(context.Background(), Options{Config: cfg, Embedder: embed.NewStaticEmbedder(8)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	_, err = s.Upload(context.Background(), UploadRequest{FileName: "first.md", Content: []byte("first")})
	require.NoError(t, err)

	// When: sending more content
	_, err = s.Upload(context.Background(), UploadRequest{FileName: "second.md", Content: []byte("second")})

	// Then: it is rejected and no file is left in the uploads directory
	assert.ErrorIs(t, err, amerrors.ErrCapacityExceeded)
	assert.NoFileExists(t, filepath.Join(s.Config().UploadsDir(), "second.md"))
	assert.FileExists(t, filepath.Join(s.Config().UploadsDir(), "first.md"))
}

func TestService_IngestPathsReportsCounts(t *testing.T) {
	s := newService(t)
	dir := t.TempDir()
	good := writeDoc(t, dir, "good.txt", "Quarterly revenue grew in every region.")
	unsupported := writeDoc(t, dir, "blob.xyz", "???")
	missing := filepath.Join(dir, "missing.txt")

	res, err := s.IngestPaths(context.Background(), "", []string{good, unsupported, missing})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Failed)
	assert.Contains(t, res.Errors, unsupported)
	assert.Contains(t, res.Errors, missing)
}

func TestService_DeleteAll(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	dir := t.TempDir()
	_, err := s.IngestPaths(ctx, "", []string{
		writeDoc(t, dir, "a.txt", "alpha document"),
		writeDoc(t, dir, "b.txt", "beta document"),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx, ""))

	docs, err := s.Documents(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_SearchRequiresQuery(t *testing.T) {
	s := newService(t)

	_, err := s.Search(context.Background(), SearchRequest{Query: "  "})

	assert.Equal(t, amerrors.ErrCodeQueryEmpty, amerrors.GetCode(err))
}

func TestService_WatchLifecycle(t *testing.T) {
	// Given: a running service and a watched directory
	s := newService(t)
	runService(t, s)
	ctx := context.Background()
	dir := t.TempDir()
	path := writeDoc(t, dir, "watched.txt", "Watched content about sailing boats.")

	// When
	entry, err := s.AddWatch(ctx, WatchRequest{Collection: "watched", Path: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, entry.Path)

	// Then: the monitor ingests the file into the collection
	require.Eventually(t, func() bool {
		docs, err := s.Documents(ctx, "watched")
		return err == nil && len(docs) == 1 && docs[0].FilePath == path
	}, 5*time.Second, 20*time.Millisecond)

	lists, err := s.ListWatch(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, s.Config().Monitor.Port, lists[0].Port)

	removed, err := s.RemoveWatch(ctx, WatchRequest{Collection: "watched", Path: dir})
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, s.ClearWatch(ctx, WatchRequest{Collection: "watched"}))
}

func TestService_AddWatchValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.AddWatch(ctx, WatchRequest{Path: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, amerrors.ErrFileNotFound)

	_, err = s.AddWatch(ctx, WatchRequest{Collection: "../up", Path: t.TempDir()})
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestService_Status(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.IngestPaths(ctx, "", []string{writeDoc(t, t.TempDir(), "a.txt", "status check document")})
	require.NoError(t, err)
	_, err = s.Search(ctx, SearchRequest{Query: "status"})
	require.NoError(t, err)
	s.PauseMonitor()

	st := s.Status(ctx)

	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, 64, st.Dimensions)
	require.Len(t, st.Collections, 1)
	assert.Equal(t, "default", st.Collections[0].Name)
	assert.Equal(t, 1, st.Collections[0].Documents)
	assert.Greater(t, st.Collections[0].EstimatedBytes, int64(0))
	assert.True(t, st.Monitor.Paused)
	assert.Equal(t, int64(1), st.Searches.Total)
	assert.Equal(t, s.Config().Queue.Capacity, st.Queue.Capacity)

	s.ResumeMonitor()
	assert.False(t, s.Status(ctx).Monitor.Paused)
}

func TestService_FailedItemIsReported(t *testing.T) {
	s := newService(t)
	failed := make(chan queue.Item, 1)
	s.Queue().Subscribe(queue.EventFileFailed, func(it queue.Item) { failed <- it })
	runService(t, s)

	_, err := s.Upload(context.Background(), UploadRequest{FilePath: writeDoc(t, t.TempDir(), "data.xyz", "binary")})
	require.NoError(t, err)

	select {
	case it := <-failed:
		assert.Equal(t, queue.StatusFailed, it.Status)
		assert.NotEmpty(t, it.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("unsupported upload was not marked failed")
	}
}
