package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupUserConfig_NoConfig(t *testing.T) {
	isolate(t)

	path, err := BackupUserConfig()

	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestInitUserConfig_RefusesWithoutForce(t *testing.T) {
	// Given: a fresh user config
	isolate(t)
	_, err := InitUserConfig(false)
	require.NoError(t, err)
	assert.True(t, UserConfigExists())

	// When: initializing again without force
	_, err = InitUserConfig(false)

	// Then: it refuses
	assert.Error(t, err)
}

func TestInitUserConfig_ForceBacksUpAndPrunes(t *testing.T) {
	isolate(t)
	_, err := InitUserConfig(false)
	require.NoError(t, err)

	var last string
	for i := 0; i < MaxBackups+2; i++ {
		last, err = InitUserConfig(true)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, last, backups[0])

	data, err := os.ReadFile(last)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size: 500")
}
