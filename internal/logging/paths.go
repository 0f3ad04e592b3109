package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDataDir returns the amandocs data directory (~/.amandocs).
// Falls back to the temp directory if the home directory is unavailable.
func DefaultDataDir() string {
	if dir := os.Getenv("AMANDOCS_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amandocs")
	}
	return filepath.Join(home, ".amandocs")
}

// DefaultLogDir returns the default log directory (~/.amandocs/logs/).
func DefaultLogDir() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile resolves the log file for viewing. An explicit path wins,
// otherwise the default server log is used if it exists.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("no log file found, run `amandocs serve` first.\nExpected at: %s", path)
}

// EnsureLogDir creates the directory holding path if it doesn't exist.
func EnsureLogDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
