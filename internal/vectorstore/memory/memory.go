package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"siterag/internal/domain"
	"siterag/internal/embedding"
)

type record struct {
	id     string
	vector []float64
	meta   domain.ChunkMetadata
}

// Storage is an in-process vector store using brute-force inner product.
// Records keep insertion order, which breaks score ties.
type Storage struct {
	mu      sync.RWMutex
	records []record
	index   map[string]int
}

func NewStorage() *Storage { return &Storage{index: make(map[string]int)} }

// Add upserts records by id. All vectors must share one dimension.
func (s *Storage) Add(ctx context.Context, ids []string, vectors [][]float64, metas []domain.ChunkMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return errors.New("ids, vectors and metadata length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := -1
	if len(s.records) > 0 {
		dim = len(s.records[0].vector)
	}
	for _, v := range vectors {
		if dim == -1 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("vector dimension mismatch: got %d, want %d", len(v), dim)
		}
	}
	for i, v := range vectors {
		r := record{id: ids[i], vector: v, meta: metas[i]}
		if j, ok := s.index[ids[i]]; ok {
			s.records[j] = r
			continue
		}
		s.index[ids[i]] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, n int) ([]domain.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || len(s.records) == 0 {
		return nil, nil
	}
	hits := make([]domain.Hit, len(s.records))
	for i, r := range s.records {
		hits[i] = domain.Hit{ID: r.id, Metadata: r.meta, Score: embedding.Dot(r.vector, vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if n < len(hits) {
		hits = hits[:n]
	}
	return hits, nil
}

func (s *Storage) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.records))
	for i, r := range s.records {
		ids[i] = r.id
	}
	return ids, nil
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := s.records[:0]
	for _, r := range s.records {
		if _, ok := drop[r.id]; !ok {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.index = make(map[string]int, len(kept))
	for i, r := range kept {
		s.index[r.id] = i
	}
	return nil
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
