package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitSlog(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	var out bytes.Buffer
	initSlog(&out, false)
	slog.Debug("hidden")
	slog.Info("shown", "n", 1)
	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), "msg=shown n=1")

	out.Reset()
	initSlog(&out, true)
	slog.Debug("now shown")
	require.Contains(t, out.String(), "now shown")
}

func TestSetupFromEnvWithoutConfig(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	// a telemetry.json5 further up the tree would be picked up
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "telemetry.json5"))
	if err == nil {
		t.Skip("telemetry.json5 exists above the temp dir")
	}

	tel, err := SetupFromEnv(context.Background(), "test")
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestRecordPerfStats(t *testing.T) {
	var memStats runtime.MemStats
	recordPerfStats(context.Background(), &memStats)
	require.NotZero(t, memStats.Alloc)
}
