package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, LLMProviderOffline, cfg.LLM.Provider)
	assert.Equal(t, 1500, cfg.RAG.ChunkSize)
	assert.Equal(t, 8000, cfg.RAG.SmallCorpusThreshold)
	assert.False(t, cfg.Search.Enabled, "web search is opt-in")
}

func TestLoadFromFiles_LayeredOverride(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
environment = "staging"

[server]
port = 9000

[rag]
chunk_size = 2000
`), 0644))

	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(local, []byte(`
[server]
port = 9001
`), 0644))

	cfg, err := LoadFromFiles(base, local)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 9001, cfg.Server.Port, "later files win")
	assert.Equal(t, 2000, cfg.RAG.ChunkSize)
	assert.Equal(t, "localhost", cfg.Server.Host, "untouched values keep defaults")
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_EmptyPathSkipped(t *testing.T) {
	cfg, err := LoadFromFiles("")
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Server.Port)
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("SERMO_SERVER_PORT", "7070")
	t.Setenv("SERMO_LLM_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env-key")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "sk-env-key", cfg.LLM.Claude.APIKey)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 6060, "0.0.0.0")
	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Zero values leave the config alone
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestIsProduction(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.IsProduction())

	cfg.Environment = "Production"
	assert.True(t, cfg.IsProduction())
}
