package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amandocs/internal/config"
	"github.com/Aman-CERP/amandocs/internal/daemon"
	"github.com/Aman-CERP/amandocs/internal/embed"
	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
	"github.com/Aman-CERP/amandocs/internal/service"
)

// isolate points every config layer at temp dirs and returns the --dir value.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AMANDOCS_DATA_DIR", t.TempDir())
	sockDir, err := os.MkdirTemp("", "amc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	t.Setenv("AMANDOCS_SOCKET_PATH", filepath.Join(sockDir, "d.sock"))
	return t.TempDir()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

// startDaemon runs a service and socket server configured from the same
// environment the CLI reads.
func startDaemon(t *testing.T, dir string) {
	t.Helper()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	cfg.Monitor.PollInterval = time.Hour
	cfg.Queue.PopTimeout = 10 * time.Millisecond
	cfg.Queue.StopTimeout = 2 * time.Second

	svc, err := service.New(context.Background(), service.Options{
		Config:   cfg,
		Embedder: embed.NewStaticEmbedder(32),
	})
	require.NoError(t, err)

	dcfg := daemon.ConfigFrom(cfg)
	dcfg.ShutdownGracePeriod = time.Second
	require.NoError(t, dcfg.EnsureDir())

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	srvDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	go func() { srvDone <- daemon.NewServer(dcfg, svc).ListenAndServe(ctx) }()
	require.Eventually(t, daemon.NewClient(dcfg).IsRunning, 5*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		<-srvDone
		<-runDone
	})
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// When: collecting subcommand names
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	// Then: every command is registered
	for _, want := range []string{
		"serve", "upload", "search", "documents", "delete", "watch",
		"monitor", "queue", "status", "config", "logs", "mcp", "version",
	} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"dir", "debug", "json", "table"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestCommands_DaemonNotRunning(t *testing.T) {
	// Given: no daemon listening on the configured socket
	dir := isolate(t)

	for _, args := range [][]string{
		{"status"},
		{"search", "anything"},
		{"documents"},
		{"queue"},
		{"watch", "list"},
		{"monitor", "pause"},
	} {
		// When: running a command that needs the daemon
		_, err := execute(t, append([]string{"--dir", dir}, args...)...)

		// Then: it fails with a hint to start it
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "daemon is not running", "%v", args)
	}
}

func TestDeleteCmd_RequiresPathsOrAll(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, "--dir", dir, "delete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either paths or --all")

	_, err = execute(t, "--dir", dir, "delete", "--all", "x.txt")
	require.Error(t, err)
}

func TestCLI_UploadSearchDocuments(t *testing.T) {
	// Given: a running daemon and a document on disk
	dir := isolate(t)
	startDaemon(t, dir)

	doc := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Budget\n\nThe travel budget for Q3 is fifty thousand."), 0o644))

	// When: ingesting it synchronously
	out, err := execute(t, "--dir", dir, "--table", "upload", "--sync", doc)

	// Then: the summary reports one insert
	require.NoError(t, err)
	assert.Contains(t, out, "Inserted 1 of 1 files")

	// When: listing documents as JSON
	out, err = execute(t, "--dir", dir, "--json", "documents")
	require.NoError(t, err)
	assert.Contains(t, out, doc)

	// When: searching
	out, err = execute(t, "--dir", dir, "--table", "search", "travel budget")
	require.NoError(t, err)
	assert.Contains(t, out, doc)

	// When: deleting it
	out, err = execute(t, "--dir", dir, "--table", "delete", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = execute(t, "--dir", dir, "--table", "documents")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents indexed.")
}

func TestCLI_StatusAndQueue(t *testing.T) {
	dir := isolate(t)
	startDaemon(t, dir)

	out, err := execute(t, "--dir", dir, "--table", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "Queue:")

	out, err = execute(t, "--dir", dir, "--json", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "[")
}

func TestCLI_WatchLifecycle(t *testing.T) {
	dir := isolate(t)
	startDaemon(t, dir)
	watched := t.TempDir()

	_, err := execute(t, "--dir", dir, "--table", "watch", "add", watched)
	require.NoError(t, err)

	out, err := execute(t, "--dir", dir, "--table", "watch", "list")
	require.NoError(t, err)
	assert.Contains(t, out, watched)

	out, err = execute(t, "--dir", dir, "--table", "watch", "remove", watched)
	require.NoError(t, err)
	assert.Contains(t, out, "Stopped watching")

	out, err = execute(t, "--dir", dir, "--table", "watch", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, watched)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n  b\tc", 10))
	assert.Equal(t, "abc…", snippet("abcdef", 3))
	assert.Equal(t, "", snippet("   ", 3))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("1234567890"))
}

func TestRootCmd_ProfileFlags(t *testing.T) {
	// Given: a heap profile requested for a trivial command
	path := filepath.Join(t.TempDir(), "heap.prof")

	// When: running it
	_, err := execute(t, "--profile-mem", path, "version", "--short")

	// Then: the profile is written on exit
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestPrintError(t *testing.T) {
	// Given: a domain error with a hint and table output
	jsonOutput = false
	err := amerrors.CapacityExceeded(5, 0)

	// When: printing it for a terminal
	buf := &bytes.Buffer{}
	printError(buf, err)

	// Then: code and details are shown
	assert.Contains(t, buf.String(), "Error: ")
	assert.Contains(t, buf.String(), amerrors.ErrCodeCapacityExceeded)
	assert.Contains(t, buf.String(), "remaining_capacity: 0")
}
