// Package retrieval fetches candidate chunks for a query and reranks them.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"siterag/internal/domain"
	"siterag/internal/embedding"
	"siterag/internal/logging"
	"siterag/internal/metrics"
)

// OverFetch is the candidate pool size relative to top_k.
const OverFetch = 2

// poolSize is topK*OverFetch, saturating instead of overflowing.
func poolSize(topK int) int {
	if topK > math.MaxInt/OverFetch {
		return math.MaxInt
	}
	return topK * OverFetch
}

type Retriever struct {
	embedder domain.Embedder
	store    domain.VectorStore
	encoder  domain.CrossEncoder
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func New(embedder domain.Embedder, store domain.VectorStore, encoder domain.CrossEncoder, log *zap.Logger, m *metrics.Metrics) *Retriever {
	return &Retriever{
		embedder: embedder,
		store:    store,
		encoder:  encoder,
		log:      logging.OrNop(log),
		metrics:  m,
	}
}

// Retrieve returns at most topK chunks scoring at least minScore, best
// first. It fails with domain.ErrEmptyCorpus when the store has no
// candidates at all; filtering everything out is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, minScore float64) ([]domain.RerankedChunk, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for one query", domain.ErrServiceUnavailable, len(vecs))
	}
	hits, err := r.store.Query(ctx, embedding.Normalize(vecs[0]), poolSize(topK))
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}
	if len(hits) == 0 {
		r.metrics.ObserveRetrieval(0, 0)
		return nil, domain.ErrEmptyCorpus
	}

	pairs := make([]domain.Pair, len(hits))
	for i, h := range hits {
		pairs[i] = domain.Pair{Query: query, Text: h.Metadata.Text}
	}
	scores, err := r.encoder.Predict(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(hits) {
		return nil, fmt.Errorf("%w: cross-encoder returned %d scores for %d pairs",
			domain.ErrServiceUnavailable, len(scores), len(hits))
	}

	candidates := make([]domain.RerankedChunk, len(hits))
	for i, h := range hits {
		candidates[i] = domain.RerankedChunk{
			Text:      h.Metadata.Text,
			Score:     scores[i],
			SourceURL: h.Metadata.SourceURL,
			Depth:     h.Metadata.Depth,
		}
	}
	kept := Select(candidates, topK, minScore)
	r.metrics.ObserveRetrieval(len(hits), len(kept))
	r.log.Debug("retrieved",
		zap.Int("candidates", len(hits)),
		zap.Int("kept", len(kept)),
		zap.Int("top_k", topK),
		zap.Float64("min_score", minScore))
	return kept, nil
}

// Select keeps candidates scoring at least minScore, orders them by score
// descending and truncates to topK. Equal scores keep their input order.
func Select(candidates []domain.RerankedChunk, topK int, minScore float64) []domain.RerankedChunk {
	kept := make([]domain.RerankedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= minScore {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if topK >= 0 && len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
