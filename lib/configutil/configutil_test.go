package configutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Token       string `json:"token"`
	Host        string `json:"host"`
	Concurrency int    `json:"concurrency"`
}

func TestLocalName(t *testing.T) {
	require.Equal(t, "config.local.json5", LocalName("config.json5"))
	require.Equal(t, filepath.Join("a", "b.local.json5"), LocalName(filepath.Join("a", "b.json5")))
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	err := os.WriteFile(name, []byte(`{
		// comments are allowed in json5
		host: "https://example.com",
		concurrency: 2,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(LocalName(name), []byte(`{token: "secret", concurrency: 8}`), 0600)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{
		Token:       "secret",
		Host:        "https://example.com",
		Concurrency: 8,
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "missing.json5"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}
