package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/chunker"
	"siterag/internal/domain"
	"siterag/internal/embedding/tfidf"
	"siterag/internal/vectorstore/memory"
)

type stubEmbedder struct {
	batches [][]string
	err     error
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, texts)
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = []float64{float64(len(t)), 0}
	}
	return out, nil
}

func paragraphs() []domain.Paragraph {
	return []domain.Paragraph{
		{Text: "root paragraph", SourceURL: "https://site.test/", Depth: 2},
		{Text: "child paragraph", SourceURL: "https://site.test/a", Depth: 1},
		{Text: "another child", SourceURL: "https://site.test/a", Depth: 1},
	}
}

func TestReindexAssignsPositionalIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := &stubEmbedder{}
	ix := New(emb, store, Config{BatchSize: 2})

	n, err := ix.Reindex(ctx, paragraphs())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_2_0", "chunk_1_1", "chunk_1_2"}, ids)
	assert.Len(t, emb.batches, 2)

	hits, err := store.Query(ctx, []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestReindexReplacesPriorCorpus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ix := New(&stubEmbedder{}, store, Config{})

	_, err := ix.Reindex(ctx, paragraphs())
	require.NoError(t, err)
	n, err := ix.Reindex(ctx, []domain.Paragraph{{Text: "only", SourceURL: "https://site.test/", Depth: 2}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_2_0"}, ids)

	n, err = ix.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, store.Len())
}

func TestReindexWithSentenceChunker(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	ix := New(&stubEmbedder{}, store, Config{Chunker: chunker.NewSentenceChunker(1, 0)})

	n, err := ix.Reindex(ctx, []domain.Paragraph{
		{Text: "First. Second.", SourceURL: "https://site.test/", Depth: 2},
		{Text: "Third.", SourceURL: "https://site.test/a", Depth: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_2_0", "chunk_2_1", "chunk_1_2"}, ids)
}

func TestReindexPreparesCorpusEmbedder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	emb := tfidf.NewEmbedder()
	ix := New(emb, store, Config{})

	_, err := ix.Reindex(ctx, paragraphs())
	require.NoError(t, err)
	assert.Positive(t, emb.Dimension())
}

func TestReindexPropagatesEmbedFailure(t *testing.T) {
	ix := New(&stubEmbedder{err: domain.ErrServiceUnavailable}, memory.NewStorage(), Config{})
	_, err := ix.Reindex(context.Background(), paragraphs())
	assert.True(t, errors.Is(err, domain.ErrServiceUnavailable))
}

func TestReindexRejectsInvalidChunk(t *testing.T) {
	ix := New(&stubEmbedder{}, memory.NewStorage(), Config{})
	_, err := ix.Reindex(context.Background(), []domain.Paragraph{{Text: "x", Depth: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidChunk)
}
