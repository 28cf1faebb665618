// Package memory derives conversational memory from the persisted history.
package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"siterag/internal/domain"
	"siterag/internal/embedding"
	"siterag/internal/logging"
	"siterag/internal/metrics"
)

// DefaultTopicThreshold is the minimum cosine similarity between the query
// and a topic label for that entry to be recalled.
const DefaultTopicThreshold = 0.5

type Manager struct {
	embedder  domain.Embedder
	threshold float64
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewManager(embedder domain.Embedder, threshold float64, log *zap.Logger, m *metrics.Metrics) *Manager {
	if threshold <= 0 {
		threshold = DefaultTopicThreshold
	}
	return &Manager{embedder: embedder, threshold: threshold, log: logging.OrNop(log), metrics: m}
}

// ShortTerm renders the last turn as "Q: <query> A: <answer>", or "" for
// an empty history.
func ShortTerm(h domain.History) string {
	last, ok := h.Last()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Q: %s A: %s", last.Query, last.Answer)
}

// Recall returns the short-term memory and the history entry whose topic
// label is most similar to query, if that similarity reaches the threshold.
func (m *Manager) Recall(ctx context.Context, query string, h domain.History) (string, domain.LongTermMemory, error) {
	stm := ShortTerm(h)
	if len(h.Topics) == 0 {
		return stm, domain.LongTermMemory{}, nil
	}
	ltm, err := m.LongTerm(ctx, query, h)
	if err != nil {
		return "", domain.LongTermMemory{}, err
	}
	return stm, ltm, nil
}

// LongTerm embeds the query and every topic label in one call and picks
// the argmax by cosine similarity. On ties the earliest entry wins.
func (m *Manager) LongTerm(ctx context.Context, query string, h domain.History) (domain.LongTermMemory, error) {
	if len(h.Topics) == 0 {
		return domain.LongTermMemory{}, nil
	}
	texts := make([]string, 0, len(h.Topics)+1)
	texts = append(texts, query)
	for _, e := range h.Topics {
		texts = append(texts, e.TopicLabel)
	}
	vecs, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return domain.LongTermMemory{}, fmt.Errorf("embed topic labels: %w", err)
	}
	if len(vecs) != len(texts) {
		return domain.LongTermMemory{}, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			domain.ErrServiceUnavailable, len(vecs), len(texts))
	}

	q := vecs[0]
	best, bestScore := -1, 0.0
	for i, v := range vecs[1:] {
		s := embedding.Cosine(q, v)
		if best == -1 || s > bestScore {
			best, bestScore = i, s
		}
	}
	if bestScore < m.threshold {
		m.log.Debug("no long-term memory above threshold",
			zap.Float64("best_similarity", bestScore),
			zap.Float64("threshold", m.threshold))
		return domain.LongTermMemory{}, nil
	}
	entry := h.Topics[best]
	m.metrics.LongTermHit()
	m.log.Debug("recalled long-term memory",
		zap.String("topic_label", entry.TopicLabel),
		zap.Float64("similarity", bestScore))
	return domain.LongTermMemory{Entry: &entry}, nil
}
