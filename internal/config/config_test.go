package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, 1.2, cfg.Search.BM25K1)
	require.Equal(t, 0.75, cfg.Search.BM25B)
	require.Equal(t, 8, cfg.Embedding.MaxConcurrent)
	require.Equal(t, "qwen3", cfg.VectorStore.DefaultModel)
	require.Equal(t, 2560, cfg.VectorStore.DefaultDimensions)
}

func TestLoadKDLOverrides(t *testing.T) {
	dir := t.TempDir()
	kdl := `
project {
    name "demo"
}
search {
    bm25_k1 1.5
    min_symbol_term_length 4
}
embedding {
    service_url "http://embedder.internal:9000"
    default_model "gemma3"
    max_concurrent 4
}
vector_store {
    default_model "gemma3"
    default_dimensions 768
}
exclude {
    "node_modules"
    "*.lock"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".retrieval.kdl"), []byte(kdl), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "demo", cfg.Project.Name)
	require.Equal(t, 1.5, cfg.Search.BM25K1)
	require.Equal(t, 4, cfg.Search.MinSymbolTermLength)
	require.Equal(t, "http://embedder.internal:9000", cfg.Embedding.ServiceURL)
	require.Equal(t, "gemma3", cfg.Embedding.DefaultModel)
	require.Equal(t, 4, cfg.Embedding.MaxConcurrent)
	require.Equal(t, 768, cfg.VectorStore.DefaultDimensions)
	require.ElementsMatch(t, []string{"node_modules", "*.lock"}, cfg.Exclude)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvEmbeddingURL, "http://override:1234")
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "http://override:1234", cfg.Embedding.ServiceURL)
}
