package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"siterag/internal/domain"
)

// Cached memoizes embeddings of an underlying embedder by exact text.
// Topic labels and repeated queries hit the cache on every request.
type Cached struct {
	next  domain.Embedder
	cache *lru.Cache[string, []float64]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next domain.Embedder, size int) (*Cached, error) {
	c, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: c}, nil
}

func (c *Cached) Name() string { return c.next.Name() }

// Embed serves cached texts locally and forwards the rest in one batch.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
			domain.ErrServiceUnavailable, len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Add(missing[j], v)
	}
	return out, nil
}

// Prepare forwards to the wrapped embedder when it needs a corpus and
// drops every cached vector, since the vector space changes.
func (c *Cached) Prepare(corpus []string) error {
	c.cache.Purge()
	if p, ok := c.next.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

func (c *Cached) Len() int { return c.cache.Len() }
