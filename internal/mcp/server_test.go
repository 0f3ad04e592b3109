package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/monitor"
	"github.com/Aman-CERP/amandocs/internal/queue"
	"github.com/Aman-CERP/amandocs/internal/service"
	"github.com/Aman-CERP/amandocs/internal/store"
	"github.com/Aman-CERP/amandocs/internal/telemetry"
)

type fakeBackend struct {
	hits      []service.Hit
	docs      []store.IndexedFileRecord
	searchErr error
	uploadErr error

	lastSearch  service.SearchRequest
	lastUpload  service.UploadRequest
	deleted     []string
	deletedAll  bool
	watches     []monitor.WatchDocument
	removedPath string
}

func (f *fakeBackend) UploadFile(_ context.Context, req service.UploadRequest) (*service.UploadResponse, error) {
	f.lastUpload = req
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &service.UploadResponse{Status: "queued", Message: "queued", ItemID: "id-1", RemainingCapacity: 9}, nil
}

func (f *fakeBackend) Search(_ context.Context, req service.SearchRequest) ([]service.Hit, error) {
	f.lastSearch = req
	return f.hits, f.searchErr
}

func (f *fakeBackend) Documents(context.Context, string) ([]store.IndexedFileRecord, error) {
	return f.docs, nil
}

func (f *fakeBackend) DeleteDocuments(_ context.Context, _ string, paths []string) (int, error) {
	f.deleted = paths
	return 3 * len(paths), nil
}

func (f *fakeBackend) DeleteAll(context.Context, string) error {
	f.deletedAll = true
	return nil
}

func (f *fakeBackend) Status(context.Context) (*service.Status, error) {
	return &service.Status{
		Version:    "test",
		Embedder:   "static",
		Dimensions: 64,
		Collections: []service.CollectionStatus{
			{Name: "default", Documents: 2, Chunks: 7, EstimatedBytes: 2048},
		},
		Queue:    queue.Snapshot{Capacity: 10, Remaining: 9, Pending: 1},
		Monitor:  service.MonitorStatus{State: monitor.StateRunning},
		Searches: telemetry.SearchSnapshot{Total: 4},
	}, nil
}

func (f *fakeBackend) AddWatch(_ context.Context, req service.WatchRequest) (*monitor.WatchEntry, error) {
	return &monitor.WatchEntry{Name: req.Name, Path: req.Path}, nil
}

func (f *fakeBackend) RemoveWatch(_ context.Context, req service.WatchRequest) (bool, error) {
	f.removedPath = req.Path
	return true, nil
}

func (f *fakeBackend) ListWatch(context.Context) ([]monitor.WatchDocument, error) {
	return f.watches, nil
}

func newTestServer(t *testing.T, b *fakeBackend) *Server {
	t.Helper()
	s, err := NewServer(b)
	require.NoError(t, err)
	return s
}

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	var names []string
	for _, tool := range s.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.ElementsMatch(t, []string{"search", "upload", "list_documents", "delete_documents", "index_status", "watch"}, names)
	assert.NotNil(t, s.MCPServer())
}

func TestServer_Search(t *testing.T) {
	// Given: a backend with one hit
	conf := 0.9
	b := &fakeBackend{hits: []service.Hit{{Path: "/docs/a.pdf", Text: "invoice total", Score: 0.8, OCRConfidence: &conf}}}
	s := newTestServer(t, b)

	// When
	out, err := s.CallTool(context.Background(), "search", map[string]any{
		"query":      "invoice",
		"collection": "finance",
		"limit":      500,
		"scope":      []string{"/docs"},
	})

	// Then
	require.NoError(t, err)
	res := out.(SearchOutput)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "/docs/a.pdf", res.Results[0].FilePath)
	assert.InDelta(t, 0.8, res.Results[0].Score, 1e-6)
	assert.Equal(t, 50, b.lastSearch.K, "limit is clamped")
	assert.Equal(t, "finance", b.lastSearch.Collection)
	assert.Equal(t, []string{"/docs"}, b.lastSearch.PathPrefixes)
}

func TestServer_SearchDefaultsAndValidation(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(t, b)

	_, err := s.CallTool(context.Background(), "search", map[string]any{"query": "budget"})
	require.NoError(t, err)
	assert.Equal(t, service.DefaultSearchLimit, b.lastSearch.K)

	_, err = s.CallTool(context.Background(), "search", map[string]any{"query": "   "})
	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)

	_, err = s.CallTool(context.Background(), "search", map[string]any{"query": 42})
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeInvalidParams, me.Code)
}

func TestServer_SearchMapsBackendErrors(t *testing.T) {
	b := &fakeBackend{searchErr: amerrors.New(amerrors.ErrCodeCollectionFailed, "cannot open collection", nil)}
	s := newTestServer(t, b)

	_, err := s.CallTool(context.Background(), "search", map[string]any{"query": "x"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeCollectionNotFound, me.Code)
}

func TestServer_Upload(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(t, b)

	out, err := s.CallTool(context.Background(), "upload", map[string]any{
		"file_name": "note.md",
		"content":   "# hello",
	})

	require.NoError(t, err)
	assert.Equal(t, "queued", out.(UploadOutput).Status)
	assert.Equal(t, []byte("# hello"), b.lastUpload.Content)
	assert.Equal(t, "note.md", b.lastUpload.FileName)
}

func TestServer_UploadQueueFull(t *testing.T) {
	b := &fakeBackend{uploadErr: amerrors.CapacityExceeded(10, 0)}
	s := newTestServer(t, b)

	_, err := s.CallTool(context.Background(), "upload", map[string]any{"file_path": "/tmp/a.txt"})

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeQueueFull, me.Code)
}

func TestServer_ListDocuments(t *testing.T) {
	b := &fakeBackend{docs: []store.IndexedFileRecord{
		{FilePath: "/d/report.pdf", FileName: "report.pdf", ChunkCount: 4, LastUpdated: 0},
	}}
	s := newTestServer(t, b)

	out, err := s.CallTool(context.Background(), "list_documents", nil)

	require.NoError(t, err)
	docs := out.(DocumentsOutput).Documents
	require.Len(t, docs, 1)
	assert.Equal(t, "application/pdf", docs[0].MIMEType)
	assert.Equal(t, time.Unix(0, 0).UTC().Format(time.RFC3339), docs[0].LastUpdated)
}

func TestServer_DeleteDocuments(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		removed int
		all     bool
		wantErr bool
	}{
		{name: "paths", args: map[string]any{"paths": []string{"/a", "/b"}}, removed: 6},
		{name: "all", args: map[string]any{"all": true}, all: true},
		{name: "neither", args: map[string]any{}, wantErr: true},
		{name: "both", args: map[string]any{"all": true, "paths": []string{"/a"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			s := newTestServer(t, b)

			out, err := s.CallTool(context.Background(), "delete_documents", tt.args)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			res := out.(DeleteOutput)
			assert.Equal(t, tt.removed, res.Removed)
			assert.Equal(t, tt.all, b.deletedAll)
		})
	}
}

func TestServer_IndexStatus(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	out, err := s.CallTool(context.Background(), "index_status", nil)

	require.NoError(t, err)
	st := out.(StatusOutput)
	assert.Equal(t, 64, st.Dimensions)
	assert.Equal(t, "running", st.MonitorState)
	require.Len(t, st.Collections, 1)
	assert.Equal(t, "2.0 KB", st.Collections[0].Size)
	assert.Equal(t, 9, st.QueueRemaining)
}

func TestServer_Watch(t *testing.T) {
	b := &fakeBackend{watches: []monitor.WatchDocument{{
		Collection: "notes",
		Port:       8765,
		Files:      []monitor.WatchEntry{{Name: "n", Path: "/notes", RegisteredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}},
	}}}
	s := newTestServer(t, b)
	ctx := context.Background()

	out, err := s.CallTool(ctx, "watch", map[string]any{"action": "list"})
	require.NoError(t, err)
	entries := out.(WatchOutput).Entries
	require.Len(t, entries, 1)
	assert.Equal(t, "notes", entries[0].Collection)
	assert.Equal(t, "2026-01-02T03:04:05Z", entries[0].RegisteredAt)

	out, err = s.CallTool(ctx, "watch", map[string]any{"action": "add", "path": "/new", "collection": "notes"})
	require.NoError(t, err)
	assert.Equal(t, "/new", out.(WatchOutput).Entries[0].Path)

	_, err = s.CallTool(ctx, "watch", map[string]any{"action": "remove"})
	assert.Error(t, err)

	out, err = s.CallTool(ctx, "watch", map[string]any{"action": "remove", "path": "/new"})
	require.NoError(t, err)
	assert.True(t, out.(WatchOutput).Removed)
	assert.Equal(t, "/new", b.removedPath)

	_, err = s.CallTool(ctx, "watch", map[string]any{"action": "explode"})
	assert.Error(t, err)
}

func TestServer_UnknownTool(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, err := s.CallTool(context.Background(), "nope", nil)

	var me *MCPError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, ErrCodeMethodNotFound, me.Code)
}

func TestServer_ReadResource(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})
	ctx := context.Background()

	text, err := s.ReadResource(ctx, "amandocs://status")
	require.NoError(t, err)
	var st service.Status
	require.NoError(t, json.Unmarshal([]byte(text), &st))
	assert.Equal(t, "static", st.Embedder)

	text, err = s.ReadResource(ctx, "amandocs://searches")
	require.NoError(t, err)
	assert.Contains(t, text, "4")

	_, err = s.ReadResource(ctx, "amandocs://missing")
	assert.Error(t, err)
}
