package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CrawlConfig configures the startup crawl.
type CrawlConfig struct {
	StartURL         string  `yaml:"start_url"`
	BaseDomain       string  `yaml:"base_domain"`
	Depth            int     `yaml:"depth"`
	FetchTimeoutSecs int     `yaml:"fetch_timeout_secs"`
	UserAgent        string  `yaml:"user_agent"`
	RatePerSec       float64 `yaml:"rate_per_sec"`
}

// ChunkerConfig configures how crawled paragraphs are split before indexing.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// OpenAIConfig holds connection details for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

func (c OpenAIConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSecs) * time.Second }

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string        `yaml:"type"`
	CacheSize int           `yaml:"cache_size"`
	BatchSize int           `yaml:"batch_size"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
}

// RerankerConfig selects the cross-encoder.
type RerankerConfig struct {
	Type string              `yaml:"type"`
	HTTP *HTTPRerankerConfig `yaml:"http,omitempty"`
}

type HTTPRerankerConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Format      string `yaml:"format"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Retries     int    `yaml:"retries"`
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	Type         string        `yaml:"type"`
	MaxSentences int           `yaml:"max_sentences"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig selects where the conversation history lives.
type HistoryConfig struct {
	Type  string       `yaml:"type"`
	File  *FileConfig  `yaml:"file,omitempty"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Key        string `yaml:"key"`
	MaxRetries int    `yaml:"max_retries"`
}

type MemoryConfig struct {
	TopicThreshold float64 `yaml:"topic_threshold"`
}

type ServerConfig struct {
	Addr               string  `yaml:"addr"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs"`
	DefaultTopK        int     `yaml:"default_top_k"`
	DefaultMinScore    float64 `yaml:"default_min_score"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Crawl       CrawlConfig       `yaml:"crawl"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	LLM         LLMConfig         `yaml:"llm"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	History     HistoryConfig     `yaml:"history"`
	Memory      MemoryConfig      `yaml:"memory"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./siterag.yaml first, then ~/.config/siterag/config.yaml.
// If neither exists, it writes defaults to ~/.config/siterag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "siterag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects unknown component types and out-of-range values.
func (c *AppConfig) Validate() error {
	choices := []struct {
		field, value string
		allowed      []string
	}{
		{"chunker.type", c.Chunker.Type, []string{"none", "sentence"}},
		{"embedder.type", c.Embedder.Type, []string{"tfidf", "openai"}},
		{"reranker.type", c.Reranker.Type, []string{"lexical", "http"}},
		{"llm.type", c.LLM.Type, []string{"openai", "extractive"}},
		{"vector_store.type", c.VectorStore.Type, []string{"memory", "qdrant", "sqlite"}},
		{"history.type", c.History.Type, []string{"file", "redis"}},
	}
	for _, ch := range choices {
		if !contains(ch.allowed, ch.value) {
			return fmt.Errorf("unknown %s %q (want one of %v)", ch.field, ch.value, ch.allowed)
		}
	}
	if c.Crawl.Depth < 0 {
		return fmt.Errorf("crawl.depth must be >= 0, got %d", c.Crawl.Depth)
	}
	if c.Server.DefaultTopK < 1 {
		return fmt.Errorf("server.default_top_k must be >= 1, got %d", c.Server.DefaultTopK)
	}
	if c.Server.DefaultMinScore < 0 || c.Server.DefaultMinScore > 1 {
		return fmt.Errorf("server.default_min_score must be in [0,1], got %g", c.Server.DefaultMinScore)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "siterag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Crawl: CrawlConfig{
			StartURL:   "https://www.bbc.com/news",
			BaseDomain: "https://www.bbc.com",
			Depth:      2,
		},
		Chunker:     ChunkerConfig{Type: "none"},
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Reranker:    RerankerConfig{Type: "lexical"},
		LLM:         LLMConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		History:     HistoryConfig{Type: "file"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Crawl.StartURL == "" {
		cfg.Crawl.StartURL = "https://www.bbc.com/news"
	}
	if cfg.Crawl.BaseDomain == "" {
		cfg.Crawl.BaseDomain = "https://www.bbc.com"
	}
	if cfg.Crawl.Depth == 0 {
		cfg.Crawl.Depth = 2
	}
	if cfg.Crawl.FetchTimeoutSecs == 0 {
		cfg.Crawl.FetchTimeoutSecs = 5
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "none"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 1024
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 64
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(cfg.Embedder.OpenAI, "all-minilm")
	}

	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "lexical"
	}
	if cfg.Reranker.Type == "http" {
		if cfg.Reranker.HTTP == nil {
			cfg.Reranker.HTTP = &HTTPRerankerConfig{}
		}
		r := cfg.Reranker.HTTP
		if r.URL == "" {
			r.URL = "http://localhost:8080/rerank"
		}
		if r.Model == "" {
			r.Model = "cross-encoder/ms-marco-TinyBERT-L-6"
		}
		if r.Format == "" {
			r.Format = "tei"
		}
		if r.TimeoutSecs == 0 {
			r.TimeoutSecs = 30
		}
		if r.Retries == 0 {
			r.Retries = 3
		}
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "openai"
	}
	if cfg.LLM.MaxSentences == 0 {
		cfg.LLM.MaxSentences = 3
	}
	if cfg.LLM.Type == "openai" {
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAIConfig{}
		}
		if cfg.LLM.OpenAI.TimeoutSecs == 0 {
			cfg.LLM.OpenAI.TimeoutSecs = 120
		}
		applyOpenAIDefaults(cfg.LLM.OpenAI, "llama2")
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "site_chunks"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.VectorStore.Type == "sqlite" {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		if cfg.VectorStore.SQLite.Path == "" {
			cfg.VectorStore.SQLite.Path = "siterag.db"
		}
	}

	if cfg.History.Type == "" {
		cfg.History.Type = "file"
	}
	if cfg.History.Type == "file" {
		if cfg.History.File == nil {
			cfg.History.File = &FileConfig{}
		}
		if cfg.History.File.Path == "" {
			cfg.History.File.Path = "history.json"
		}
	}
	if cfg.History.Type == "redis" {
		if cfg.History.Redis == nil {
			cfg.History.Redis = &RedisConfig{}
		}
		if cfg.History.Redis.Addr == "" {
			cfg.History.Redis.Addr = "localhost:6379"
		}
		if cfg.History.Redis.Key == "" {
			cfg.History.Redis.Key = "siterag:history"
		}
		if cfg.History.Redis.MaxRetries == 0 {
			cfg.History.Redis.MaxRetries = 10
		}
	}

	if cfg.Memory.TopicThreshold == 0 {
		cfg.Memory.TopicThreshold = 0.5
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 300
	}
	if cfg.Server.DefaultTopK == 0 {
		cfg.Server.DefaultTopK = 10
	}
	if cfg.Server.DefaultMinScore == 0 {
		cfg.Server.DefaultMinScore = 0.3
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func applyOpenAIDefaults(c *OpenAIConfig, model string) {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}
