package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/domain"
)

// mapEmbedder returns a fixed vector per text.
type mapEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (m *mapEmbedder) Name() string { return "map" }

func (m *mapEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.calls++
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float64{0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func TestRecallEmptyHistory(t *testing.T) {
	emb := &mapEmbedder{}
	m := NewManager(emb, 0, nil, nil)

	stm, ltm, err := m.Recall(context.Background(), "anything", domain.History{})
	require.NoError(t, err)
	assert.Equal(t, "", stm)
	assert.True(t, ltm.IsEmpty())
	assert.Zero(t, emb.calls)
}

func TestRecallAboveThreshold(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float64{
		"where is paris": {1, 0},
		"geography":      {0.6, 0.8},
	}}
	m := NewManager(emb, DefaultTopicThreshold, nil, nil)
	h := domain.History{Topics: []domain.HistoryEntry{{Query: "Q1", Answer: "A1", TopicLabel: "geography"}}}

	stm, ltm, err := m.Recall(context.Background(), "where is paris", h)
	require.NoError(t, err)
	assert.Equal(t, "Q: Q1 A: A1", stm)
	require.False(t, ltm.IsEmpty())
	assert.Equal(t, h.Topics[0], *ltm.Entry)
	assert.Equal(t, 1, emb.calls)
}

func TestRecallBelowThreshold(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float64{
		"football scores": {1, 0},
		"geography":       {0.4, 0.9165},
	}}
	m := NewManager(emb, DefaultTopicThreshold, nil, nil)
	h := domain.History{Topics: []domain.HistoryEntry{{Query: "Q1", Answer: "A1", TopicLabel: "geography"}}}

	stm, ltm, err := m.Recall(context.Background(), "football scores", h)
	require.NoError(t, err)
	assert.Equal(t, "Q: Q1 A: A1", stm)
	assert.True(t, ltm.IsEmpty())
}

func TestLongTermPicksBestAndFirstOnTie(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float64{
		"q":       {1, 0},
		"weather": {0.6, 0.8},
		"sport":   {1, 0},
		"sports":  {2, 0},
	}}
	m := NewManager(emb, DefaultTopicThreshold, nil, nil)
	h := domain.History{Topics: []domain.HistoryEntry{
		{Query: "w", Answer: "a", TopicLabel: "weather"},
		{Query: "s1", Answer: "a", TopicLabel: "sport"},
		{Query: "s2", Answer: "a", TopicLabel: "sports"},
	}}

	ltm, err := m.LongTerm(context.Background(), "q", h)
	require.NoError(t, err)
	require.NotNil(t, ltm.Entry)
	assert.Equal(t, "s1", ltm.Entry.Query)
}

func TestShortTermUsesLastEntry(t *testing.T) {
	h := domain.History{Topics: []domain.HistoryEntry{
		{Query: "old", Answer: "x"},
		{Query: "new", Answer: "y"},
	}}
	assert.Equal(t, "Q: new A: y", ShortTerm(h))
	assert.Equal(t, "", ShortTerm(domain.History{}))
}

func TestRecallAtExactThreshold(t *testing.T) {
	emb := &mapEmbedder{vectors: map[string][]float64{
		"storm damage": {1, 0, 0, 0},
		"weather":      {1, 1, 1, 1},
	}}
	h := domain.History{Topics: []domain.HistoryEntry{{Query: "Q1", Answer: "A1", TopicLabel: "weather"}}}

	_, ltm, err := NewManager(emb, DefaultTopicThreshold, nil, nil).Recall(context.Background(), "storm damage", h)
	require.NoError(t, err)
	require.False(t, ltm.IsEmpty())
	assert.Equal(t, "weather", ltm.Entry.TopicLabel)

	_, ltm, err = NewManager(emb, 0.5000001, nil, nil).Recall(context.Background(), "storm damage", h)
	require.NoError(t, err)
	assert.True(t, ltm.IsEmpty())
}
