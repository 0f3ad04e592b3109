package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points user config and data dir at temp locations.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("AMANDOCS_DATA_DIR", "")
	for _, key := range []string{
		"AMANDOCS_CHUNK_SIZE", "AMANDOCS_CHUNK_OVERLAP", "AMANDOCS_EMBEDDINGS_PROVIDER",
		"AMANDOCS_EMBEDDINGS_DIMENSIONS", "AMANDOCS_QUEUE_CAPACITY", "AMANDOCS_LOG_LEVEL",
		"AMANDOCS_POLL_INTERVAL", "AMANDOCS_COLLECTION", "AMANDOCS_LOG_MAX_SIZE_MB",
		"AMANDOCS_LOG_MAX_FILES", "AMANDOCS_LOG_SYNC_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
	assert.Equal(t, 100, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 256, cfg.Embeddings.Dimensions)
	assert.Equal(t, "default", cfg.Store.DefaultCollection)
	assert.Equal(t, 30*time.Second, cfg.Store.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 3, cfg.Monitor.MaxRetries)
	assert.Equal(t, time.Second, cfg.Monitor.RetryDelay)
	assert.Contains(t, cfg.Monitor.Exclude, "**/.git/**")
	assert.Equal(t, 100, cfg.Queue.Capacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.PopTimeout)
	assert.Equal(t, 10*time.Second, cfg.Queue.StopTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	// Given: a user config and a project config
	isolate(t)
	userPath := GetUserConfigPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("chunking:\n  chunk_size: 800\n  chunk_overlap: 50\nqueue:\n  capacity: 7\n"), 0o644))

	dir := t.TempDir()
	project := "chunking:\n  chunk_size: 600\nmonitor:\n  poll_interval: 2s\n  exclude: [\"**/*.bak\"]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amandocs.yaml"), []byte(project), 0o644))

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: project wins where set, user fills the rest, excludes merge
	assert.Equal(t, 600, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 7, cfg.Queue.Capacity)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
	assert.Contains(t, cfg.Monitor.Exclude, "**/*.bak")
	assert.Contains(t, cfg.Monitor.Exclude, "**/.git/**")
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amandocs.yaml"), []byte("queue:\n  capacity: 5\n"), 0o644))
	t.Setenv("AMANDOCS_QUEUE_CAPACITY", "42")
	t.Setenv("AMANDOCS_POLL_INTERVAL", "250ms")
	t.Setenv("AMANDOCS_CHUNK_SIZE", "not-a-number")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Queue.Capacity)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.PollInterval)
	assert.Equal(t, 500, cfg.Chunking.ChunkSize)
}

func TestLoad_ServerLogRotation(t *testing.T) {
	// Given: a project file tuning the server log
	isolate(t)
	dir := t.TempDir()
	yaml := "server:\n  log_max_size_mb: 2\n  log_sync_interval: 1s\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amandocs.yaml"), []byte(yaml), 0o644))
	t.Setenv("AMANDOCS_LOG_MAX_FILES", "9")

	// When
	cfg, err := Load(dir)

	// Then: file, env and defaults combine
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Server.LogMaxSizeMB)
	assert.Equal(t, 9, cfg.Server.LogMaxFiles)
	assert.Equal(t, time.Second, cfg.Server.LogSyncInterval)
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	// Given: a .env file and an explicitly set variable
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("AMANDOCS_COLLECTION=notes\nAMANDOCS_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("AMANDOCS_LOG_LEVEL", "warn")
	// t.Setenv("", ...) leaves the key present but empty; godotenv skips only unset keys.
	require.NoError(t, os.Unsetenv("AMANDOCS_COLLECTION"))
	t.Cleanup(func() { _ = os.Unsetenv("AMANDOCS_COLLECTION") })

	// When: loading
	cfg, err := Load(dir)
	require.NoError(t, err)

	// Then: .env fills the unset one, the process env wins for the other
	assert.Equal(t, "notes", cfg.Store.DefaultCollection)
	assert.Equal(t, "warn", cfg.Server.LogLevel)
}

func TestLoad_InvalidYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".amandocs.yaml"), []byte("chunking: [oops"), 0o644))

	_, err := Load(dir)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"overlap equals size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }, "chunk_overlap"},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }, "dimensions"},
		{"too many dimensions", func(c *Config) { c.Embeddings.Dimensions = MaxDimensions + 1 }, "dimensions"},
		{"zero capacity", func(c *Config) { c.Queue.Capacity = 0 }, "capacity"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }, "provider"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "log_level"},
		{"collection with slash", func(c *Config) { c.Store.DefaultCollection = "a/b" }, "default_collection"},
		{"zero log size", func(c *Config) { c.Server.LogMaxSizeMB = 0 }, "log_max_size_mb"},
		{"zero log files", func(c *Config) { c.Server.LogMaxFiles = 0 }, "log_max_files"},
		{"negative sync interval", func(c *Config) { c.Server.LogSyncInterval = -time.Second }, "log_sync_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.DataDir = "/data"

	assert.Equal(t, "/data/collections", cfg.CollectionsDir())
	assert.Equal(t, "/data/monitor.db", cfg.MonitorDBPath())
	assert.Equal(t, "/data/uploads", cfg.UploadsDir())
	assert.Equal(t, "/data/amandocs.pid", cfg.PIDPath())
	assert.Equal(t, "/data/amandocs.sock", cfg.ResolvedSocketPath())

	cfg.Server.SocketPath = "/run/x.sock"
	assert.Equal(t, "/run/x.sock", cfg.ResolvedSocketPath())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	cfg := NewConfig()
	cfg.Queue.Capacity = 9
	cfg.Store.FlushInterval = time.Minute

	require.NoError(t, cfg.WriteYAML(path))

	loaded := NewConfig()
	require.NoError(t, loaded.loadYAML(path))
	assert.Equal(t, 9, loaded.Queue.Capacity)
	assert.Equal(t, time.Minute, loaded.Store.FlushInterval)
}
