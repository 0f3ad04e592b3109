package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T) string {
	t.Helper()
	lines := []string{
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"service_started","data_dir":"/tmp/x"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"upload_retry","path":"/tmp/a.pdf"}`,
		`{"time":"2026-01-02T10:00:02Z","level":"ERROR","msg":"ingest_failed","path":"/tmp/b.pdf"}`,
	}
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestLogsCmd_TailWithLevel(t *testing.T) {
	// Given: a log file with mixed levels
	path := writeLog(t)

	// When: tailing with --level warn
	out, err := execute(t, "logs", "--file", path, "--no-color", "--level", "warn")

	// Then: only warn and above are shown
	require.NoError(t, err)
	assert.NotContains(t, out, "service_started")
	assert.Contains(t, out, "upload_retry")
	assert.Contains(t, out, "ingest_failed")
}

func TestLogsCmd_Filter(t *testing.T) {
	path := writeLog(t)

	out, err := execute(t, "logs", "--file", path, "--no-color", "--filter", "b\\.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "ingest_failed")
	assert.NotContains(t, out, "upload_retry")
}

func TestLogsCmd_Errors(t *testing.T) {
	_, err := execute(t, "logs", "--file", filepath.Join(t.TempDir(), "missing.log"))
	require.Error(t, err)

	path := writeLog(t)
	_, err = execute(t, "logs", "--file", path, "--filter", "(")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
