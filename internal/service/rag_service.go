// Package service wires crawling, indexing, retrieval, memory and
// generation into the question-answering pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"siterag/internal/crawler"
	"siterag/internal/domain"
	"siterag/internal/history"
	"siterag/internal/logging"
	"siterag/internal/metrics"
	"siterag/internal/prompt"
	"siterag/internal/textclean"
)

type Crawler interface {
	Crawl(ctx context.Context, startURL string, maxDepth int) ([]domain.Paragraph, *crawler.Traversal)
}

type Indexer interface {
	Reindex(ctx context.Context, paragraphs []domain.Paragraph) (int, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, minScore float64) ([]domain.RerankedChunk, error)
}

type Recaller interface {
	Recall(ctx context.Context, query string, h domain.History) (string, domain.LongTermMemory, error)
}

// Deps are the collaborators of a Service. All are required except
// Logger and Metrics.
type Deps struct {
	Crawler   Crawler
	Indexer   Indexer
	Retriever Retriever
	Memory    Recaller
	Chat      domain.ChatModel
	History   domain.HistoryStore
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Options struct {
	StartURL string
	Depth    int
}

type Service struct {
	deps  Deps
	opts  Options
	log   *zap.Logger
	ready atomic.Bool
}

func New(deps Deps, opts Options) *Service {
	return &Service{deps: deps, opts: opts, log: logging.OrNop(deps.Logger)}
}

// Ready reports whether the startup index is complete.
func (s *Service) Ready() bool { return s.ready.Load() }

// Bootstrap crawls the configured site and rebuilds the index. Queries are
// refused with domain.ErrNotReady until it succeeds.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	s.ready.Store(false)
	start := time.Now()
	paragraphs, trav := s.deps.Crawler.Crawl(ctx, s.opts.StartURL, s.opts.Depth)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.deps.Indexer.Reindex(ctx, paragraphs)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}
	s.ready.Store(true)
	s.log.Info("service ready",
		zap.Int("pages", trav.Len()),
		zap.Int("chunks", n),
		zap.Duration("took", time.Since(start)))
	return n, nil
}

// HandleQuery answers one question, records the turn in the history and
// returns the answer with the context and memory that produced it.
func (s *Service) HandleQuery(ctx context.Context, req domain.QueryRequest) (resp domain.QueryResponse, err error) {
	start := time.Now()
	defer func() {
		s.deps.Metrics.ObserveQuery(statusOf(err), start)
	}()
	if !s.Ready() {
		return domain.QueryResponse{}, domain.ErrNotReady
	}
	if err := req.Validate(); err != nil {
		return domain.QueryResponse{}, err
	}

	chunks, err := s.deps.Retriever.Retrieve(ctx, req.Query, req.TopK, req.MinScore)
	if err != nil {
		return domain.QueryResponse{}, err
	}

	past, err := s.deps.History.Load(ctx)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("load history: %w", err)
	}
	stm, ltm, err := s.deps.Memory.Recall(ctx, req.Query, past)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("recall memory: %w", err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	full := prompt.Compose(req.Query, stm, ltm, texts)

	raw, err := s.chat(ctx, full)
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("generate answer: %w", err)
	}
	answer := textclean.Clean(raw)

	rawLabel, err := s.chat(ctx, prompt.TopicPrompt(req.Query, answer))
	if err != nil {
		return domain.QueryResponse{}, fmt.Errorf("generate topic label: %w", err)
	}
	label := textclean.Clean(rawLabel)

	if _, err := s.deps.History.Update(ctx, history.Appender(req.Query, answer, label)); err != nil {
		return domain.QueryResponse{}, fmt.Errorf("record history: %w", err)
	}

	out := make([]domain.RerankedChunk, len(chunks))
	for i, c := range chunks {
		c.Text = textclean.Clean(c.Text)
		out[i] = c
	}
	s.log.Info("query answered",
		zap.Int("chunks", len(out)),
		zap.Bool("short_term_memory", stm != ""),
		zap.Bool("long_term_memory", !ltm.IsEmpty()),
		zap.String("topic_label", label),
		zap.Duration("took", time.Since(start)))
	return domain.QueryResponse{
		Answer:          answer,
		RelevantChunks:  out,
		UsedPrompt:      full,
		ShortTermMemory: stm,
		LongTermMemory:  ltm,
	}, nil
}

// History returns the persisted conversation.
func (s *Service) History(ctx context.Context) (domain.History, error) {
	return s.deps.History.Load(ctx)
}

func (s *Service) ClearHistory(ctx context.Context) error {
	return s.deps.History.Clear(ctx)
}

func (s *Service) chat(ctx context.Context, content string) (string, error) {
	return s.deps.Chat.Chat(ctx, []domain.Message{{Role: "user", Content: content}})
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrEmptyCorpus):
		return "empty_corpus"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrNotReady):
		return "not_ready"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
