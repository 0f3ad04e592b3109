// Package daemon serves the service operations as JSON-RPC 2.0 over a unix
// socket, and provides the matching client used by the CLI and by remote
// monitors.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/amandocs/internal/config"
)

// Config holds the socket, PID file and timeouts.
type Config struct {
	SocketPath string
	PIDPath    string

	// Timeout bounds one client round trip.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long the server waits for open connections.
	// Default: 10s
	ShutdownGracePeriod time.Duration
}

// ConfigFrom derives the daemon settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SocketPath:          cfg.ResolvedSocketPath(),
		PIDPath:             cfg.PIDPath(),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories of the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
