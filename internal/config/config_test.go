// Copyright 2025 The FitLog Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://sync.example.com
user_id: user1
device_id: laptop
debounce: 500ms
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://sync.example.com", cfg.ServerURL)
	require.Equal(t, "user1", cfg.UserID)
	require.Equal(t, 500*time.Millisecond, cfg.Debounce.Std())
	// Unset keys keep their defaults.
	require.Equal(t, "fitlog.db", cfg.DatabasePath)
	require.Equal(t, 3*time.Second, cfg.IdleAfter.Std())
}

func TestLoadRequiresUserID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: https://x\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "user_id")
}
