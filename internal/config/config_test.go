// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, 5, cfg.Generator().MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Pipeline().StageTimeout)
	assert.Equal(t, "docker", cfg.Pipeline().ContainerTool)
	assert.Equal(t, 3000, cfg.Runtime().Port)
	assert.Equal(t, "npm install", cfg.Runtime().InstallCommand)
	assert.Equal(t, 5*time.Second, cfg.Monitor().HealthInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor().LogInterval)
	assert.Equal(t, 5, cfg.Monitor().MaxEvolutionCycles)
	assert.True(t, cfg.Monitor().AutoRestart)
	assert.Empty(t, cfg.LLM().APIKey)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: debug
generator:
  max_attempts: 2
runtime:
  port: 4321
monitor:
  max_evolution_cycles: 1
  auto_restart: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, 2, cfg.Generator().MaxAttempts)
	assert.Equal(t, 4321, cfg.Runtime().Port)
	assert.Equal(t, 1, cfg.Monitor().MaxEvolutionCycles)
	assert.False(t, cfg.Monitor().AutoRestart)
	// Untouched sections keep their defaults.
	assert.Equal(t, "npm start", cfg.Runtime().StartCommand)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FOUNDRY_LOGGER_LEVEL", "warn")
	t.Setenv("FOUNDRY_RUNTIME_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logger().Level)
	assert.Equal(t, 9999, cfg.Runtime().Port)
}

func TestOutputDirExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  output_dir: ~/generated\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Runtime().OutputDir, "~")
	assert.True(t, filepath.IsAbs(cfg.Runtime().OutputDir))
}

func TestVerbosityFlags(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Verbose())
	assert.False(t, cfg.Quiet())

	cfg.SetVerbose(true)
	cfg.SetQuiet(true)
	assert.True(t, cfg.Verbose())
	assert.True(t, cfg.Quiet())
}
