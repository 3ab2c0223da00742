package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenerd/internal/config"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.Storage.DefaultKnowledgeGraph)
	assert.Equal(t, 10000, cfg.Storage.Persist.BufferSize)
}

func TestLoad_BaseThenOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[storage]
data_dir = "/var/lib/kg"

[storage.persist]
buffer_size = 500
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
[storage]
default_knowledge_graph = "prod"
`), 0o644))

	cfg, err := config.Load(base, override)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/kg", cfg.Storage.DataDir)
	assert.Equal(t, 500, cfg.Storage.Persist.BufferSize)
	assert.Equal(t, "prod", cfg.Storage.DefaultKnowledgeGraph)
}

func TestLoad_MissingOverrideIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`[storage]
data_dir = "data"
`), 0o644))

	cfg, err := config.Load(base, filepath.Join(dir, "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Storage.DataDir)
}

func TestLoad_EnvOverridesWinOverFiles(t *testing.T) {
	t.Setenv("KG__STORAGE__PERSIST__BUFFER_SIZE", "42")
	t.Setenv("KG__OPTIMIZATION__ENABLE_JOIN_PLANNING", "true")

	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
[storage.persist]
buffer_size = 500
`), 0o644))
	require.NoError(t, os.WriteFile(override, []byte(`
[optimization]
enable_join_planning = false
`), 0o644))

	cfg, err := config.Load(base, override)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Storage.Persist.BufferSize)
	assert.True(t, cfg.Optimization.EnableJoinPlanning)
}

func TestValidate_RejectsUnknownDurabilityMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Persist.DurabilityMode = "eventually"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveBufferSize(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Persist.BufferSize = 0
	assert.Error(t, cfg.Validate())
}
