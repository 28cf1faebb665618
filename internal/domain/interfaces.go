package domain

import "context"

// Embedder converts free text into numeric vectors of a fixed dimension.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Preparer is implemented by embedders that must see the corpus before
// they can embed (e.g. TF-IDF vocabularies).
type Preparer interface {
	Prepare(corpus []string) error
}

// VectorStore persists chunk vectors with metadata and answers
// nearest-neighbour queries by inner product.
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float64, metas []ChunkMetadata) error
	// Query returns at most n hits ranked by similarity, best first.
	Query(ctx context.Context, vector []float64, n int) ([]Hit, error)
	IDs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// CrossEncoder jointly scores (query, text) pairs. Scores are returned in
// the same order as the pairs.
type CrossEncoder interface {
	Predict(ctx context.Context, pairs []Pair) ([]float64, error)
}

// ChatModel is a text-generation service.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Chunker splits a crawled paragraph into smaller indexable pieces.
type Chunker interface {
	Chunk(p Paragraph) ([]Paragraph, error)
}

// HistoryStore reads and rewrites the persisted conversation history.
// Update applies fn to the current persisted value and writes the result
// back as one serialized step, so concurrent updates are never lost.
type HistoryStore interface {
	Load(ctx context.Context) (History, error)
	Update(ctx context.Context, fn func(History) (History, error)) (History, error)
	Clear(ctx context.Context) error
}
