package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/domain"
	"siterag/internal/vectorstore/memory"
)

func chunks(scores ...float64) []domain.RerankedChunk {
	out := make([]domain.RerankedChunk, len(scores))
	for i, s := range scores {
		out[i] = domain.RerankedChunk{Text: string(rune('a' + i)), Score: s}
	}
	return out
}

func scoresOf(cs []domain.RerankedChunk) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Score
	}
	return out
}

func TestSelectFiltersSortsTruncates(t *testing.T) {
	got := Select(chunks(0.9, 0.2, 0.5), 2, 0.3)
	assert.Equal(t, []float64{0.9, 0.5}, scoresOf(got))
}

func TestSelectStableOnTies(t *testing.T) {
	got := Select(chunks(0.4, 0.8, 0.4, 0.8), 4, 0)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"b", "d", "a", "c"}, []string{got[0].Text, got[1].Text, got[2].Text, got[3].Text})
}

func TestSelectProperties(t *testing.T) {
	cases := []struct {
		scores   []float64
		topK     int
		minScore float64
	}{
		{[]float64{0.1, 0.2, 0.3}, 5, 0.5},
		{[]float64{1, 1, 1}, 1, 1},
		{[]float64{0.3, 0.7, 0.5, 0.9, 0.3}, 3, 0.3},
		{nil, 3, 0},
	}
	for _, tc := range cases {
		got := Select(chunks(tc.scores...), tc.topK, tc.minScore)
		assert.LessOrEqual(t, len(got), tc.topK)
		for i, c := range got {
			assert.GreaterOrEqual(t, c.Score, tc.minScore)
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Score, c.Score)
			}
		}
	}
}

type fixedEmbedder struct{ vec []float64 }

func (f fixedEmbedder) Name() string { return "fixed" }

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = append([]float64(nil), f.vec...)
	}
	return out, nil
}

type tableEncoder struct {
	scores map[string]float64
	pairs  []domain.Pair
	err    error
}

func (e *tableEncoder) Predict(_ context.Context, pairs []domain.Pair) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.pairs = pairs
	out := make([]float64, len(pairs))
	for i, p := range pairs {
		out[i] = e.scores[p.Text]
	}
	return out, nil
}

func seededStore(t *testing.T) *memory.Storage {
	s := memory.NewStorage()
	metas := []domain.ChunkMetadata{
		{Text: "alpha", SourceURL: "https://site.test/", Depth: 2},
		{Text: "beta", SourceURL: "https://site.test/a", Depth: 1},
		{Text: "gamma", SourceURL: "https://site.test/b", Depth: 1},
	}
	require.NoError(t, s.Add(context.Background(),
		[]string{"chunk_2_0", "chunk_1_1", "chunk_1_2"},
		[][]float64{{1, 0}, {0.8, 0.6}, {0.6, 0.8}},
		metas))
	return s
}

func TestRetrieve(t *testing.T) {
	enc := &tableEncoder{scores: map[string]float64{"alpha": 0.9, "beta": 0.2, "gamma": 0.5}}
	r := New(fixedEmbedder{vec: []float64{2, 0}}, seededStore(t), enc, nil, nil)

	got, err := r.Retrieve(context.Background(), "q", 2, 0.3)
	require.NoError(t, err)

	// top_k*2 = 4 candidates requested, 3 available
	assert.Len(t, enc.pairs, 3)
	assert.Equal(t, domain.Pair{Query: "q", Text: "alpha"}, enc.pairs[0])
	require.Len(t, got, 2)
	assert.Equal(t, domain.RerankedChunk{Text: "alpha", Score: 0.9, SourceURL: "https://site.test/", Depth: 2}, got[0])
	assert.Equal(t, "gamma", got[1].Text)
}

func TestRetrieveOverFetch(t *testing.T) {
	enc := &tableEncoder{scores: map[string]float64{}}
	r := New(fixedEmbedder{vec: []float64{1, 0}}, seededStore(t), enc, nil, nil)

	got, err := r.Retrieve(context.Background(), "q", 1, 0.3)
	require.NoError(t, err)
	assert.Len(t, enc.pairs, 2)
	assert.Empty(t, got)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	r := New(fixedEmbedder{vec: []float64{1, 0}}, memory.NewStorage(), &tableEncoder{}, nil, nil)
	_, err := r.Retrieve(context.Background(), "q", 3, 0.3)
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestRetrievePropagatesEncoderFailure(t *testing.T) {
	enc := &tableEncoder{err: errors.Join(domain.ErrServiceUnavailable, errors.New("timeout"))}
	r := New(fixedEmbedder{vec: []float64{1, 0}}, seededStore(t), enc, nil, nil)
	_, err := r.Retrieve(context.Background(), "q", 3, 0.3)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.NotErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestRetrieveHugeTopK(t *testing.T) {
	enc := &tableEncoder{scores: map[string]float64{"alpha": 0.9, "beta": 0.2, "gamma": 0.5}}
	r := New(fixedEmbedder{vec: []float64{1, 0}}, seededStore(t), enc, nil, nil)

	got, err := r.Retrieve(context.Background(), "q", math.MaxInt/2+1, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, math.MaxInt, poolSize(math.MaxInt))
	assert.Equal(t, 8, poolSize(4))
}
