package main

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"siterag/internal/chunker"
	"siterag/internal/config"
	"siterag/internal/crawler"
	"siterag/internal/domain"
	"siterag/internal/embedding"
	"siterag/internal/embedding/openai"
	"siterag/internal/embedding/tfidf"
	"siterag/internal/history"
	"siterag/internal/indexer"
	"siterag/internal/llm/extractive"
	llmopenai "siterag/internal/llm/openai"
	"siterag/internal/memory"
	"siterag/internal/metrics"
	"siterag/internal/rerank"
	"siterag/internal/retrieval"
	"siterag/internal/service"
	vsmemory "siterag/internal/vectorstore/memory"
	"siterag/internal/vectorstore/qdrant"
	"siterag/internal/vectorstore/sqlite"
)

// app is the assembled pipeline plus the resources that need closing.
type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	crawler  *crawler.Crawler
	service  *service.Service
	closers  []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func buildApp(cfg *config.AppConfig, log *zap.Logger) (_ *app, err error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	a := &app{cfg: cfg, log: log, registry: reg, metrics: m}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var base domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf":
		base = tfidf.NewEmbedder()
	case "openai":
		oc := cfg.Embedder.OpenAI
		base = openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   oc.Timeout(),
			Retries:   oc.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
	emb, err := embedding.NewCached(base, cfg.Embedder.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "none":
		ch = chunker.Passthrough{}
	case "sentence":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var st domain.VectorStore
	switch cfg.VectorStore.Type {
	case "memory":
		st = vsmemory.NewStorage()
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st = qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
	case "sqlite":
		db, err := sqlite.Open(cfg.VectorStore.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		st = db
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var enc domain.CrossEncoder
	switch cfg.Reranker.Type {
	case "lexical":
		enc = rerank.Lexical{}
	case "http":
		r := cfg.Reranker.HTTP
		hc, err := rerank.NewHTTPClient(rerank.HTTPConfig{
			URL:       r.URL,
			Model:     r.Model,
			APIKeyEnv: r.APIKeyEnv,
			Format:    r.Format,
			Timeout:   time.Duration(r.TimeoutSecs) * time.Second,
			Retries:   r.Retries,
		})
		if err != nil {
			return nil, err
		}
		enc = hc
	default:
		return nil, fmt.Errorf("unknown reranker: %s", cfg.Reranker.Type)
	}

	var chat domain.ChatModel
	switch cfg.LLM.Type {
	case "openai":
		oc := cfg.LLM.OpenAI
		chat = llmopenai.NewClient(llmopenai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    oc.Timeout(),
			MaxRetries: oc.MaxRetries,
		})
	case "extractive":
		chat = extractive.New(cfg.LLM.MaxSentences)
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}

	var hist domain.HistoryStore
	switch cfg.History.Type {
	case "file":
		hist = history.NewFileStore(cfg.History.File.Path)
	case "redis":
		r := cfg.History.Redis
		rs := history.NewRedisStore(history.RedisConfig{
			Addr:       r.Addr,
			Password:   r.Password,
			DB:         r.DB,
			Key:        r.Key,
			MaxRetries: r.MaxRetries,
		}, m)
		a.closers = append(a.closers, rs)
		hist = rs
	default:
		return nil, fmt.Errorf("unknown history store: %s", cfg.History.Type)
	}

	a.crawler = crawler.New(crawler.NewHTTPFetcher(crawler.FetcherConfig{
		Timeout:    time.Duration(cfg.Crawl.FetchTimeoutSecs) * time.Second,
		UserAgent:  cfg.Crawl.UserAgent,
		RatePerSec: cfg.Crawl.RatePerSec,
	}), crawler.Config{BaseDomain: cfg.Crawl.BaseDomain, Logger: log, Metrics: m})

	a.service = service.New(service.Deps{
		Crawler:   a.crawler,
		Indexer:   indexer.New(emb, st, indexer.Config{BatchSize: cfg.Embedder.BatchSize, Chunker: ch, Logger: log, Metrics: m}),
		Retriever: retrieval.New(emb, st, enc, log, m),
		Memory:    memory.NewManager(emb, cfg.Memory.TopicThreshold, log, m),
		Chat:      chat,
		History:   hist,
		Logger:    log,
		Metrics:   m,
	}, service.Options{StartURL: cfg.Crawl.StartURL, Depth: cfg.Crawl.Depth})

	log.Info("pipeline assembled",
		zap.String("embedder", cfg.Embedder.Type),
		zap.String("chunker", cfg.Chunker.Type),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("reranker", cfg.Reranker.Type),
		zap.String("llm", cfg.LLM.Type),
		zap.String("history", cfg.History.Type))
	return a, nil
}
