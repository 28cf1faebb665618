package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"siterag/internal/domain"
)

const scrollPage = 256

// Storage is a minimal REST client to Qdrant. The collection uses dot
// product distance and is created on the first Add. A collection whose
// vector size differs from the incoming vectors is recreated.
type Storage struct {
	url        string
	apiKey     string
	collection string
	retries    int
	client     *http.Client

	mu   sync.Mutex
	size int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	Retries    int
}

// errNotFound marks a 404 from Qdrant, i.e. a missing collection.
var errNotFound = errors.New("qdrant: not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "siterag"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		retries:    retries,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk id onto the UUID Qdrant stores it under.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

type payload struct {
	ChunkID   string `json:"chunk_id"`
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	Depth     int    `json:"depth"`
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == dimension {
		return nil
	}
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &info)
	switch {
	case errors.Is(err, errNotFound):
	case err != nil:
		return err
	case info.Result.Config.Params.Vectors.Size == dimension:
		s.size = dimension
		return nil
	default:
		// Embedders such as TF-IDF change dimension between index runs.
		if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !errors.Is(err, errNotFound) {
			return fmt.Errorf("drop collection with size %d: %w", info.Result.Config.Params.Vectors.Size, err)
		}
	}
	body := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": "Dot"},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.size = dimension
	return nil
}

func (s *Storage) Add(ctx context.Context, ids []string, vectors [][]float64, metas []domain.ChunkMetadata) error {
	if len(ids) != len(vectors) || len(ids) != len(metas) {
		return errors.New("ids, vectors and metadata length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}
	points := make([]map[string]any, len(ids))
	for i := range ids {
		points[i] = map[string]any{
			"id":     PointID(ids[i]),
			"vector": vectors[i],
			"payload": payload{
				ChunkID:   ids[i],
				Text:      metas[i].Text,
				SourceURL: metas[i].SourceURL,
				Depth:     metas[i].Depth,
			},
		}
	}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", map[string]any{"points": points}, nil)
}

func (s *Storage) Query(ctx context.Context, vector []float64, n int) ([]domain.Hit, error) {
	if n <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        n,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, domain.Hit{
			ID:    r.Payload.ChunkID,
			Score: r.Score,
			Metadata: domain.ChunkMetadata{
				Text:      r.Payload.Text,
				SourceURL: r.Payload.SourceURL,
				Depth:     r.Payload.Depth,
			},
		})
	}
	return hits, nil
}

// IDs scrolls the whole collection and returns the stored chunk ids.
func (s *Storage) IDs(ctx context.Context) ([]string, error) {
	var ids []string
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPage,
			"with_payload": []string{"chunk_id"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload payload `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/scroll", req, &resp)
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			ids = append(ids, p.Payload.ChunkID)
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (s *Storage) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/delete?wait=true", map[string]any{"points": points}, nil)
	if errors.Is(err, errNotFound) {
		return nil
	}
	return err
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends a JSON request, retrying transport errors and 5xx responses.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode qdrant request: %w", err)
		}
	}
	return retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("api-key", s.apiKey)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: qdrant %s: %v", domain.ErrServiceUnavailable, method, err)
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Unrecoverable(errNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: qdrant %s %s: %s", domain.ErrServiceUnavailable, method, url, resp.Status)
		case resp.StatusCode >= 300:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.Unrecoverable(fmt.Errorf("qdrant %s %s: %s: %s", method, url, resp.Status, bytes.TrimSpace(msg)))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode qdrant response: %w", err))
			}
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(s.retries)),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
