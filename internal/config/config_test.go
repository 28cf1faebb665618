package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://www.bbc.com/news", cfg.Crawl.StartURL)
	assert.Equal(t, "https://www.bbc.com", cfg.Crawl.BaseDomain)
	assert.Equal(t, 2, cfg.Crawl.Depth)
	assert.Equal(t, "history.json", cfg.History.File.Path)
	assert.Equal(t, 0.5, cfg.Memory.TopicThreshold)
	assert.Equal(t, 10, cfg.Server.DefaultTopK)
	assert.Equal(t, 0.3, cfg.Server.DefaultMinScore)
	require.NotNil(t, cfg.LLM.OpenAI)
	assert.Equal(t, "llama2", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.OpenAI.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.LLM.OpenAI.Timeout())
}

func TestLoadAppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siterag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
crawl:
  start_url: https://news.test/
  base_domain: https://news.test
embedder:
  type: openai
  openai:
    model: text-embedding-3-small
reranker:
  type: http
vector_store:
  type: qdrant
history:
  type: redis
llm:
  type: openai
  openai:
    timeout_secs: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://news.test/", cfg.Crawl.StartURL)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "cross-encoder/ms-marco-TinyBERT-L-6", cfg.Reranker.HTTP.Model)
	assert.Equal(t, "tei", cfg.Reranker.HTTP.Format)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, "site_chunks", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "localhost:6379", cfg.History.Redis.Addr)
	assert.Equal(t, "siterag:history", cfg.History.Redis.Key)
	assert.Nil(t, cfg.History.File)
	assert.Equal(t, 30*time.Second, cfg.LLM.OpenAI.Timeout())
}

func TestLoadRejectsUnknownTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vector_store:\n  type: pinecone\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_store.type")

	require.NoError(t, os.WriteFile(path, []byte("server:\n  default_min_score: 2\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("crawl: [oops"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Crawl.Depth = 3
	cfg.Log.Level = "debug"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
