package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/embedding"
)

func TestPrepareAndEmbed(t *testing.T) {
	e := NewEmbedder()
	corpus := []string{
		"Heavy rain is expected across London tomorrow.",
		"The football final ended in a draw.",
		"Rain and wind warnings cover the south coast.",
	}
	require.NoError(t, e.Prepare(corpus))
	assert.Positive(t, e.Dimension())

	vecs, err := e.Embed(context.Background(), append(corpus, "will there be rain in London?"))
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, math.Sqrt(embedding.Dot(v, v)), 1e-9)
	}

	query := vecs[3]
	assert.Greater(t, embedding.Dot(query, vecs[0]), embedding.Dot(query, vecs[1]))
	assert.Zero(t, embedding.Dot(query, vecs[1]))
}

func TestEmbedUnknownTermsIsZero(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta"}))

	vecs, err := e.Embed(context.Background(), []string{"gamma"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, vecs[0])
}

func TestEmbedBeforePrepare(t *testing.T) {
	vecs, err := NewEmbedder().Embed(context.Background(), []string{"anything"})
	require.NoError(t, err)
	assert.Empty(t, vecs[0])
}

func TestPrepareRejectsEmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(nil))
	assert.Error(t, NewEmbedder().Prepare([]string{"the and of"}))
}
