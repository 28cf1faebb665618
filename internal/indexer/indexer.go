// Package indexer rebuilds the vector store from a crawl.
package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"siterag/internal/chunker"
	"siterag/internal/domain"
	"siterag/internal/embedding"
	"siterag/internal/logging"
	"siterag/internal/metrics"
)

const defaultBatchSize = 64

type Config struct {
	// BatchSize caps the texts sent per embedding call.
	BatchSize int
	Chunker   domain.Chunker
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Indexer replaces the whole corpus on every run.
type Indexer struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	chunker   domain.Chunker
	batchSize int
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(embedder domain.Embedder, store domain.VectorStore, cfg Config) *Indexer {
	ch := cfg.Chunker
	if ch == nil {
		ch = chunker.Passthrough{}
	}
	bs := cfg.BatchSize
	if bs <= 0 {
		bs = defaultBatchSize
	}
	return &Indexer{
		embedder:  embedder,
		store:     store,
		chunker:   ch,
		batchSize: bs,
		log:       logging.OrNop(cfg.Logger),
		metrics:   cfg.Metrics,
	}
}

// ChunkID is the id of the chunk at position pos of one index generation.
func ChunkID(depth, pos int) string {
	return fmt.Sprintf("chunk_%d_%d", depth, pos)
}

// Reindex deletes every stored id, then embeds and inserts paragraphs.
// It returns the number of chunks inserted.
func (ix *Indexer) Reindex(ctx context.Context, paragraphs []domain.Paragraph) (int, error) {
	var chunks []domain.Paragraph
	for _, p := range paragraphs {
		split, err := ix.chunker.Chunk(p)
		if err != nil {
			return 0, fmt.Errorf("chunk %s: %w", p.SourceURL, err)
		}
		chunks = append(chunks, split...)
	}

	ids := make([]string, len(chunks))
	metas := make([]domain.ChunkMetadata, len(chunks))
	texts := make([]string, len(chunks))
	for pos, c := range chunks {
		m := domain.ChunkMetadata{Text: c.Text, SourceURL: c.SourceURL, Depth: c.Depth}
		if err := m.Validate(); err != nil {
			return 0, fmt.Errorf("chunk %d: %w", pos, err)
		}
		ids[pos] = ChunkID(c.Depth, pos)
		metas[pos] = m
		texts[pos] = c.Text
	}

	existing, err := ix.store.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored ids: %w", err)
	}
	if err := ix.store.Delete(ctx, existing); err != nil {
		return 0, fmt.Errorf("delete %d stored chunks: %w", len(existing), err)
	}
	ix.log.Debug("cleared vector store", zap.Int("deleted", len(existing)))
	ix.metrics.SetIndexed(0)

	if len(chunks) == 0 {
		ix.log.Info("indexed 0 chunks")
		return 0, nil
	}

	if p, ok := ix.embedder.(domain.Preparer); ok {
		if err := p.Prepare(texts); err != nil {
			return 0, fmt.Errorf("prepare %s embedder: %w", ix.embedder.Name(), err)
		}
	}

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		vecs, err := ix.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return 0, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return 0, fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
				domain.ErrServiceUnavailable, len(vecs), end-start)
		}
		for i := range vecs {
			vecs[i] = embedding.Normalize(vecs[i])
		}
		if err := ix.store.Add(ctx, ids[start:end], vecs, metas[start:end]); err != nil {
			return 0, fmt.Errorf("add chunks %d-%d: %w", start, end, err)
		}
	}

	ix.metrics.SetIndexed(len(chunks))
	ix.log.Info(fmt.Sprintf("indexed %d chunks", len(chunks)),
		zap.String("embedder", ix.embedder.Name()),
		zap.Int("paragraphs", len(paragraphs)))
	return len(chunks), nil
}
