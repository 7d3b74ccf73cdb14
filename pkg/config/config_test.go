package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	os.Setenv("RAGCORE_LLM_API_KEY", "test-key")
	os.Setenv("RAGCORE_EMBEDDER_PROVIDER", "ollama")
	defer os.Unsetenv("RAGCORE_LLM_API_KEY")
	defer os.Unsetenv("RAGCORE_EMBEDDER_PROVIDER")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "chromem", cfg.Vector.Type)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 200, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 5, cfg.Pipeline.MaxConcurrentProcessing)
	assert.Equal(t, int64(10*1024*1024), cfg.Pipeline.MaxFileSizeBytes)
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
}

func TestLoadReadsYAMLFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
database:
  driver: postgres
  host: db.internal
  database: ragcore
pipeline:
  chunk_size: 500
embedder:
  provider: ollama
llm:
  api_key: file-key
`), 0644)
	require.NoError(t, err)

	os.Setenv("RAGCORE_CHUNK_SIZE", "750")
	defer os.Unsetenv("RAGCORE_CHUNK_SIZE")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 750, cfg.Pipeline.ChunkSize, "env var must override the file value")
	assert.Equal(t, "file-key", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidPipelineGeometry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(`
pipeline:
  chunk_size: 100
  chunk_overlap: 500
embedder:
  provider: ollama
llm:
  api_key: k
`), 0644)
	require.NoError(t, err)

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestValidateRequiresLLMAPIKey(t *testing.T) {
	cfg := &Config{}
	cfg.Database.SetDefaults()
	cfg.Vector.SetDefaults()
	cfg.EventBus.SetDefaults()
	cfg.Embedder.Provider = "ollama"
	cfg.Embedder.SetDefaults()
	cfg.LLM.SetDefaults()
	cfg.Logging.SetDefaults()
	require.NoError(t, cfg.Pipeline.SetDefaults())

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm")
}
