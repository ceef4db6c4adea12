package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelhray/dispatch/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeFile(t, "config.yaml", `
store:
  backend: postgres
  dsn: postgres://localhost/dispatch
gateway:
  url: http://gateway.internal:9000
monitor:
  poll_interval: 2s
health:
  threshold: 90s
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "postgres://localhost/dispatch", cfg.Store.DSN)
	assert.Equal(t, "http://gateway.internal:9000", cfg.Gateway.URL)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.Health.Threshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8710", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 10*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Health.Threshold)
}

func TestLoadAgentSeeds(t *testing.T) {
	path := writeFile(t, "agents.yaml", `
agents:
  - name: generalist
    capabilities: [code, bugfix, test]
    config:
      max_concurrent_tasks: 1
  - name: docs-bot
    capabilities: [documentation]
    config:
      task_types: [documentation]
      auto_accept: true
`)

	seeds, err := LoadAgentSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "generalist", seeds[0].Name)
	assert.Contains(t, seeds[0].Capabilities, models.CapabilityBugfix)
	assert.Equal(t, "docs-bot", seeds[1].Name)
	assert.True(t, seeds[1].Config.AutoAccept)
	assert.Equal(t, []models.TaskType{models.TaskTypeDocumentation}, seeds[1].Config.TaskTypes)
}

func TestLoadAgentSeedsMissingFileIsEmpty(t *testing.T) {
	seeds, err := LoadAgentSeeds(filepath.Join(t.TempDir(), "agents.yaml"))
	require.NoError(t, err)
	assert.Empty(t, seeds)
}

func TestLoadAgentSeedsValidation(t *testing.T) {
	path := writeFile(t, "agents.yaml", `
agents:
  - name: ""
    capabilities: [code]
`)
	_, err := LoadAgentSeeds(path)
	assert.Error(t, err)
}
