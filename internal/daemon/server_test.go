package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/service"
)

type harness struct {
	svc    *service.Service
	client *Client
	cfg    Config
}

func startDaemon(t *testing.T) *harness {
	t.Helper()
	// Unix socket paths are length limited; keep them short.
	sockDir, err := os.MkdirTemp("", "amd")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	appCfg := config.NewConfig()
	appCfg.Store.DataDir = t.TempDir()
	appCfg.Store.FlushInterval = time.Hour
	appCfg.Monitor.PollInterval = time.Hour
	appCfg.Monitor.RetryDelay = time.Millisecond
	appCfg.Monitor.UploadsPerSecond = 1000
	appCfg.Queue.PopTimeout = 10 * time.Millisecond
	appCfg.Queue.StopTimeout = 2 * time.Second

	svc, err := service.New(context.Background(), service.Options{
		Config:   appCfg,
		Embedder: embed.NewStaticEmbedder(32),
	})
	require.NoError(t, err)

	cfg := ConfigFrom(appCfg)
	cfg.SocketPath = filepath.Join(sockDir, "d.sock")
	cfg.Timeout = 5 * time.Second
	cfg.ShutdownGracePeriod = time.Second
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	srvDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	srv := NewServer(cfg, svc)
	go func() { srvDone <- srv.ListenAndServe(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		for _, ch := range []chan error{srvDone, runDone} {
			select {
			case <-ch:
			case <-time.After(5 * time.Second):
				t.Error("daemon did not stop")
			}
		}
	})
	return &harness{svc: svc, client: client, cfg: cfg}
}

func TestConfigValidate(t *testing.T) {
	cfg := ConfigFrom(config.NewConfig())
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.SocketPath = ""
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Timeout = 0
	assert.Error(t, bad.Validate())
}

func TestClient_Ping(t *testing.T) {
	h := startDaemon(t)

	assert.NoError(t, h.client.Ping(context.Background()))
}

func TestClient_NotRunning(t *testing.T) {
	c := NewClient(Config{SocketPath: filepath.Join(t.TempDir(), "none.sock"), Timeout: time.Second})

	assert.False(t, c.IsRunning())
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_UploadAndSearch(t *testing.T) {
	// Given: a running daemon and a document on disk
	h := startDaemon(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Harbor\n\nThe lighthouse keeper logs every passing ship."), 0o644))

	// When: uploading through the socket
	resp, err := h.client.UploadFile(ctx, service.UploadRequest{Collection: "harbor", FilePath: path})
	require.NoError(t, err)
	assert.Equal(t, "queued", resp.Status)

	// Then: the document becomes searchable
	require.Eventually(t, func() bool {
		docs, err := h.client.Documents(ctx, "harbor")
		return err == nil && len(docs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	hits, err := h.client.Search(ctx, service.SearchRequest{Collection: "harbor", Query: "lighthouse keeper", K: 3})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, path, hits[0].Path)

	items, err := h.client.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "harbor", items[0].Collection)

	removed, err := h.client.DeleteDocuments(ctx, "harbor", []string{path})
	require.NoError(t, err)
	assert.Greater(t, removed, 0)
}

func TestClient_ErrorsKeepTheirCode(t *testing.T) {
	h := startDaemon(t)
	ctx := context.Background()

	_, err := h.client.Search(ctx, service.SearchRequest{Query: ""})
	assert.Equal(t, amerrors.ErrCodeQueryEmpty, amerrors.GetCode(err))

	err = h.client.Upload(ctx, "", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, amerrors.ErrFileNotFound)

	_, err = h.client.DeleteDocuments(ctx, "", nil)
	assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
}

func TestClient_IngestAndDeleteAll(t *testing.T) {
	h := startDaemon(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("alpha beta gamma"), 0o644))

	res, err := h.client.IngestPaths(ctx, "", []string{a, filepath.Join(dir, "b.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)

	require.NoError(t, h.client.DeleteAll(ctx, ""))
	docs, err := h.client.Documents(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClient_WatchAndMonitor(t *testing.T) {
	h := startDaemon(t)
	ctx := context.Background()
	dir := t.TempDir()

	require.NoError(t, h.client.PauseMonitor(ctx))
	st, err := h.client.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Monitor.Paused)

	entry, err := h.client.AddWatch(ctx, service.WatchRequest{Collection: "w", Path: dir})
	require.NoError(t, err)
	assert.Equal(t, dir, entry.Path)

	lists, err := h.client.ListWatch(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "w", lists[0].Collection)

	removed, err := h.client.RemoveWatch(ctx, service.WatchRequest{Collection: "w", Path: dir})
	require.NoError(t, err)
	assert.True(t, removed)
	require.NoError(t, h.client.ClearWatch(ctx, service.WatchRequest{Collection: "w"}))

	require.NoError(t, h.client.ResumeMonitor(ctx))
	sums, err := h.client.MonitorSummaries(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sums)
}

func rawCall(t *testing.T, socket string, payload string) Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte(payload + "\n"))
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.NewDecoder(conn).Decode(&resp))
	return resp
}

func TestServer_ProtocolErrors(t *testing.T) {
	h := startDaemon(t)

	tests := []struct {
		name    string
		payload string
		code    int
	}{
		{"parse error", `{not json`, ErrCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":"1"}`, ErrCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"nope","id":"2"}`, ErrCodeMethodNotFound},
		{"bad params", `{"jsonrpc":"2.0","method":"search","params":{"k":"many"},"id":"3"}`, ErrCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawCall(t, h.cfg.SocketPath, tt.payload)

			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServer_SocketIsPrivate(t *testing.T) {
	h := startDaemon(t)

	info, err := os.Stat(h.cfg.SocketPath)

	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
