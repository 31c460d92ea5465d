package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"promptshelf/internal/components/telemetry"
	"promptshelf/internal/scrapers/prompts"
	"promptshelf/internal/store"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv(TokenEnv, "")

	dir := t.TempDir()
	path := filepath.Join(dir, "promptshelf.json5")
	err := os.WriteFile(path, []byte(`{
		token: "file-token",
		concurrency: 8,
		extractor: "dom",
		database: { file: "promptshelf.db" },
	}`), 0600)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "file-token", cfg.Token)
	require.Equal(t, 8, cfg.Concurrency)
	require.Equal(t, store.Config{File: "promptshelf.db"}, cfg.Database)
	require.Equal(t, prompts.DefaultHost, cfg.Host)
	require.Equal(t, 8111, cfg.Server.Port)
	require.IsType(t, prompts.DOMExtractor{}, cfg.StateExtractor())

	opts := cfg.OrchestratorOptions()
	require.Equal(t, 8, opts.Concurrency)
	require.Equal(t, 30*time.Second, opts.TaskTimeout)

	clientOpts := cfg.ClientOptions()
	require.Equal(t, "file-token", clientOpts.Token)
	require.Equal(t, 30*time.Second, clientOpts.Timeout)
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "env-token")

	path := filepath.Join(t.TempDir(), "promptshelf.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{token: "file-token"}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-token", cfg.Token)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json5"))
	require.Error(t, err)
}

func TestDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, Defaults(), cfg)
	require.IsType(t, prompts.ScanExtractor{}, cfg.StateExtractor())
}

func TestNewOrchestrator(t *testing.T) {
	require.NotPanics(t, func() {
		Defaults().NewOrchestrator(&telemetry.RecorderAPI{}, nil)
	})
}
