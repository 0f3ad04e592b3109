package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of config backups to keep.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"
)

// BackupUserConfig copies the user config to a timestamped sibling and prunes
// older copies beyond MaxBackups. Returns "" when there is nothing to back up.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	backups, err := ListUserConfigBackups()
	if err == nil && len(backups) > MaxBackups {
		for _, old := range backups[MaxBackups:] {
			_ = os.Remove(old)
		}
	}

	return backupPath, nil
}

// ListUserConfigBackups returns backup files for the user config, newest first.
// Backup names embed a sortable timestamp, so ordering is lexical.
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	prefix := filepath.Base(configPath) + BackupSuffix + "."

	entries, err := os.ReadDir(filepath.Dir(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(filepath.Dir(configPath), entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// InitUserConfig writes the default configuration to the user config path.
// An existing file is kept unless force is set, in which case it is backed up
// first. Returns the backup path, if one was made.
func InitUserConfig(force bool) (string, error) {
	if UserConfigExists() && !force {
		return "", fmt.Errorf("config already exists at %s (use --force to overwrite)", GetUserConfigPath())
	}

	backup, err := BackupUserConfig()
	if err != nil {
		return "", err
	}

	if err := NewConfig().WriteYAML(GetUserConfigPath()); err != nil {
		return backup, err
	}
	return backup, nil
}
