package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandocs/internal/logging"
)

// MaxDimensions is the largest embedding dimension the index accepts.
const MaxDimensions = 1536

// Config represents the complete amandocs configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Monitor    MonitorConfig    `yaml:"monitor" json:"monitor"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// ChunkingConfig bounds text chunks, counted in runes.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (offline, hash based) or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// StoreConfig configures where collections live and how often they are flushed.
type StoreConfig struct {
	DataDir           string        `yaml:"data_dir" json:"data_dir"`
	DefaultCollection string        `yaml:"default_collection" json:"default_collection"`
	FlushInterval     time.Duration `yaml:"flush_interval" json:"flush_interval"`
}

// MonitorConfig configures the change-monitoring daemon.
type MonitorConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxRetries       int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Exclude          []string      `yaml:"exclude" json:"exclude"`
	UploadsPerSecond float64       `yaml:"uploads_per_second" json:"uploads_per_second"`
	// Port and IP identify the server a watch-list uploads to.
	Port int    `yaml:"port" json:"port"`
	IP   string `yaml:"ip" json:"ip"`
}

// QueueConfig configures the bounded upload queue.
type QueueConfig struct {
	Capacity    int           `yaml:"capacity" json:"capacity"`
	PopTimeout  time.Duration `yaml:"pop_timeout" json:"pop_timeout"`
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout"`
}

// ServerConfig configures the daemon surfaces.
type ServerConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	SocketPath  string `yaml:"socket_path" json:"socket_path"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`

	// LogMaxSizeMB and LogMaxFiles bound the rotating server log.
	LogMaxSizeMB int `yaml:"log_max_size_mb" json:"log_max_size_mb"`
	LogMaxFiles  int `yaml:"log_max_files" json:"log_max_files"`
	// LogSyncInterval spaces out fsyncs of the server log; zero syncs
	// every line.
	LogSyncInterval time.Duration `yaml:"log_sync_interval" json:"log_sync_interval"`
}

// defaultExcludePatterns are never expanded from watched directories.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.DS_Store",
	"**/~$*",
	"**/*.tmp",
	"**/*.swp",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			ChunkSize:    500,
			ChunkOverlap: 100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 256,
			OllamaHost: "", // Empty uses http://localhost:11434
			CacheSize:  1000,
		},
		Store: StoreConfig{
			DataDir:           logging.DefaultDataDir(),
			DefaultCollection: "default",
			FlushInterval:     30 * time.Second,
		},
		Monitor: MonitorConfig{
			PollInterval:     10 * time.Second,
			MaxRetries:       3,
			RetryDelay:       time.Second,
			Exclude:          append([]string(nil), defaultExcludePatterns...),
			UploadsPerSecond: 5,
			Port:             8765,
			IP:               "127.0.0.1",
		},
		Queue: QueueConfig{
			Capacity:    100,
			PopTimeout:  500 * time.Millisecond,
			StopTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			LogLevel:    "info",
			SocketPath:  "", // Empty resolves to <data_dir>/amandocs.sock
			MetricsAddr: "",

			LogMaxSizeMB: 10,
			LogMaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/amandocs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amandocs/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amandocs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amandocs", "config.yaml")
	}
	return filepath.Join(home, ".config", "amandocs", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir. Layers, lowest priority first:
// defaults, user config, project .amandocs.yaml, .env, AMANDOCS_* env vars.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{".amandocs.yaml", ".amandocs.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	// Already-set variables win over .env.
	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Store.DataDir != "" {
		c.Store.DataDir = expandHome(other.Store.DataDir)
	}
	if other.Store.DefaultCollection != "" {
		c.Store.DefaultCollection = other.Store.DefaultCollection
	}
	if other.Store.FlushInterval != 0 {
		c.Store.FlushInterval = other.Store.FlushInterval
	}

	if other.Monitor.PollInterval != 0 {
		c.Monitor.PollInterval = other.Monitor.PollInterval
	}
	if other.Monitor.MaxRetries != 0 {
		c.Monitor.MaxRetries = other.Monitor.MaxRetries
	}
	if other.Monitor.RetryDelay != 0 {
		c.Monitor.RetryDelay = other.Monitor.RetryDelay
	}
	if len(other.Monitor.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Monitor.Exclude = append(c.Monitor.Exclude, other.Monitor.Exclude...)
	}
	if other.Monitor.UploadsPerSecond != 0 {
		c.Monitor.UploadsPerSecond = other.Monitor.UploadsPerSecond
	}
	if other.Monitor.Port != 0 {
		c.Monitor.Port = other.Monitor.Port
	}
	if other.Monitor.IP != "" {
		c.Monitor.IP = other.Monitor.IP
	}

	if other.Queue.Capacity != 0 {
		c.Queue.Capacity = other.Queue.Capacity
	}
	if other.Queue.PopTimeout != 0 {
		c.Queue.PopTimeout = other.Queue.PopTimeout
	}
	if other.Queue.StopTimeout != 0 {
		c.Queue.StopTimeout = other.Queue.StopTimeout
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.SocketPath != "" {
		c.Server.SocketPath = expandHome(other.Server.SocketPath)
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
	if other.Server.LogMaxSizeMB != 0 {
		c.Server.LogMaxSizeMB = other.Server.LogMaxSizeMB
	}
	if other.Server.LogMaxFiles != 0 {
		c.Server.LogMaxFiles = other.Server.LogMaxFiles
	}
	if other.Server.LogSyncInterval != 0 {
		c.Server.LogSyncInterval = other.Server.LogSyncInterval
	}
}

// applyEnvOverrides applies AMANDOCS_* environment variable overrides.
// Malformed numeric values are ignored and left for Validate to judge.
func (c *Config) applyEnvOverrides() {
	envInt("AMANDOCS_CHUNK_SIZE", &c.Chunking.ChunkSize)
	envInt("AMANDOCS_CHUNK_OVERLAP", &c.Chunking.ChunkOverlap)

	envString("AMANDOCS_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	envString("AMANDOCS_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	envInt("AMANDOCS_EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	envString("AMANDOCS_OLLAMA_HOST", &c.Embeddings.OllamaHost)

	if v := os.Getenv("AMANDOCS_DATA_DIR"); v != "" {
		c.Store.DataDir = expandHome(v)
	}
	envString("AMANDOCS_COLLECTION", &c.Store.DefaultCollection)
	envDuration("AMANDOCS_FLUSH_INTERVAL", &c.Store.FlushInterval)

	envDuration("AMANDOCS_POLL_INTERVAL", &c.Monitor.PollInterval)
	envInt("AMANDOCS_MONITOR_PORT", &c.Monitor.Port)

	envInt("AMANDOCS_QUEUE_CAPACITY", &c.Queue.Capacity)

	envString("AMANDOCS_LOG_LEVEL", &c.Server.LogLevel)
	envString("AMANDOCS_SOCKET_PATH", &c.Server.SocketPath)
	envString("AMANDOCS_METRICS_ADDR", &c.Server.MetricsAddr)
	envInt("AMANDOCS_LOG_MAX_SIZE_MB", &c.Server.LogMaxSizeMB)
	envInt("AMANDOCS_LOG_MAX_FILES", &c.Server.LogMaxFiles)
	envDuration("AMANDOCS_LOG_SYNC_INTERVAL", &c.Server.LogSyncInterval)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be in [0, chunk_size), got %d", c.Chunking.ChunkOverlap)
	}

	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 1 || c.Embeddings.Dimensions > MaxDimensions {
		return fmt.Errorf("embeddings.dimensions must be in [1, %d], got %d", MaxDimensions, c.Embeddings.Dimensions)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir must be set")
	}
	if c.Store.DefaultCollection == "" || strings.ContainsAny(c.Store.DefaultCollection, `/\`) {
		return fmt.Errorf("store.default_collection must be a plain name, got %q", c.Store.DefaultCollection)
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.MaxRetries < 1 {
		return fmt.Errorf("monitor.max_retries must be at least 1, got %d", c.Monitor.MaxRetries)
	}

	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be at least 1, got %d", c.Queue.Capacity)
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("server.log_level must be debug, info, warn or error, got %q", c.Server.LogLevel)
	}
	if c.Server.LogMaxSizeMB < 1 {
		return fmt.Errorf("server.log_max_size_mb must be at least 1, got %d", c.Server.LogMaxSizeMB)
	}
	if c.Server.LogMaxFiles < 1 {
		return fmt.Errorf("server.log_max_files must be at least 1, got %d", c.Server.LogMaxFiles)
	}
	if c.Server.LogSyncInterval < 0 {
		return fmt.Errorf("server.log_sync_interval must not be negative, got %s", c.Server.LogSyncInterval)
	}

	return nil
}

// CollectionsDir is the parent of every collection directory.
func (c *Config) CollectionsDir() string {
	return filepath.Join(c.Store.DataDir, "collections")
}

// MonitorDBPath is the SQLite file holding watch documents.
func (c *Config) MonitorDBPath() string {
	return filepath.Join(c.Store.DataDir, "monitor.db")
}

// UploadsDir receives content pushed by upload calls.
func (c *Config) UploadsDir() string {
	return filepath.Join(c.Store.DataDir, "uploads")
}

// PIDPath is the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Store.DataDir, "amandocs.pid")
}

// ResolvedSocketPath returns the configured socket path or the default one
// inside the data directory.
func (c *Config) ResolvedSocketPath() string {
	if c.Server.SocketPath != "" {
		return c.Server.SocketPath
	}
	return filepath.Join(c.Store.DataDir, "amandocs.sock")
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
