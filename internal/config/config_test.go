package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeJSON(t *testing.T, path string, v map[string]any) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
}

func TestLoad_DefaultsWhenDefaultFileMissing(t *testing.T) {
	chdir(t, t.TempDir())

	l, err := NewLoader(newFlags(t))
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)

	require.Equal(t, 16, cfg.Lockers)
	require.Equal(t, 5000, cfg.ServerPort)
	require.Equal(t, 1, cfg.ZoneID)
	require.Equal(t, 3*time.Second, cfg.ActuatorTimeout)
	require.Equal(t, 5*time.Second, cfg.OpenGrace)
	require.Equal(t, 300*time.Millisecond, cfg.BulkDelay)
	require.Equal(t, StoreFile, cfg.Store)
	require.Equal(t, "locker_assignments.json", cfg.DataFile)
	require.Equal(t, "*", cfg.CORSOrigin)
	require.Empty(t, cfg.MigrationsDir)
	require.Empty(t, l.Path())
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiosk.json")
	writeJSON(t, path, map[string]any{
		"base_url":    "http://controller/api/v1",
		"token":       "file-token",
		"zone_id":     4,
		"server_port": 6000,
		"open_grace":  "2s",
	})
	t.Setenv("LOCKER_TOKEN", "env-token")

	l, err := NewLoader(newFlags(t, "--config", path, "--server_port", "7000"))
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)

	require.Equal(t, "http://controller/api/v1", cfg.BaseURL)
	require.Equal(t, "env-token", cfg.Token)
	require.Equal(t, 4, cfg.ZoneID)
	require.Equal(t, 7000, cfg.ServerPort)
	require.Equal(t, 2*time.Second, cfg.OpenGrace)
	require.Equal(t, path, l.Path())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	l, err := NewLoader(newFlags(t, "--config", filepath.Join(t.TempDir(), "nope.json")))
	require.NoError(t, err)
	_, err = l.Load()
	require.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := [][]string{
		{"--store", "s3"},
		{"--store", "postgres"},
		{"--lockers", "0"},
		{"--server_port", "70000"},
		{"--log_level", "loud"},
		{"--bulk_delay", "0s"},
	}
	for _, args := range cases {
		chdir(t, t.TempDir())
		l, err := NewLoader(newFlags(t, args...))
		require.NoError(t, err)
		_, err = l.Load()
		require.ErrorIs(t, err, ErrInvalidConfig, "args %v", args)
	}
}

func TestSaveSettings_WritesFileAndKeepsOtherKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeJSON(t, path, map[string]any{
		"base_url": "http://old/api",
		"lockers":  8,
	})

	l, err := NewLoader(newFlags(t, "--config", path))
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)

	cfg, err := l.SaveSettings(Settings{BaseURL: " http://new/api ", Token: "t1", ZoneID: 2, ServerPort: 5001})
	require.NoError(t, err)
	require.Equal(t, "http://new/api", cfg.BaseURL)
	require.Equal(t, 8, cfg.Lockers)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, "http://new/api", onDisk["base_url"])
	require.Equal(t, "t1", onDisk["token"])
	require.EqualValues(t, 8, onDisk["lockers"])

	_, err = l.SaveSettings(Settings{BaseURL: "", ServerPort: 5001})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	writeJSON(t, path, map[string]any{"base_url": "http://a/api", "zone_id": 1})

	l, err := NewLoader(newFlags(t, "--config", path))
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)

	got := make(chan Config, 4)
	l.Watch(func(cfg Config) { got <- cfg })

	writeJSON(t, path, map[string]any{"base_url": "http://b/api", "zone_id": 9})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-got:
			if cfg.BaseURL == "http://b/api" {
				require.Equal(t, 9, cfg.ZoneID)
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"trace", "DEBUG", "info", "", "warn", "warning", "error"} {
		_, err := ParseLevel(s)
		require.NoError(t, err, s)
	}
	_, err := ParseLevel("verbose")
	require.ErrorIs(t, err, ErrInvalidConfig)
}
