// Package rerank provides cross-encoder scorers for (query, text) pairs.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"

	"siterag/internal/domain"
)

// Wire formats understood by HTTPClient.
const (
	// FormatTEI is the text-embeddings-inference /rerank API:
	// {"query","texts"} -> [{"index","score"}].
	FormatTEI = "tei"
	// FormatCohere is the Cohere/Jina style API:
	// {"query","documents","model"} -> {"results":[{"index","relevance_score"}]}.
	FormatCohere = "cohere"
)

type HTTPConfig struct {
	URL       string
	Model     string
	APIKeyEnv string
	Format    string
	Timeout   time.Duration
	Retries   int
}

// HTTPClient scores pairs with a remote cross-encoder. Pairs sharing a
// query are sent in one request.
type HTTPClient struct {
	url     string
	model   string
	apiKey  string
	format  string
	retries int
	client  *http.Client
}

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("reranker url is required")
	}
	format := cfg.Format
	if format == "" {
		format = FormatTEI
	}
	if format != FormatTEI && format != FormatCohere {
		return nil, fmt.Errorf("unknown reranker format: %s", format)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &HTTPClient{
		url:     cfg.URL,
		model:   cfg.Model,
		apiKey:  key,
		format:  format,
		retries: retries,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPClient) Predict(ctx context.Context, pairs []domain.Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	groups := make(map[string][]int)
	var order []string
	for i, p := range pairs {
		if _, ok := groups[p.Query]; !ok {
			order = append(order, p.Query)
		}
		groups[p.Query] = append(groups[p.Query], i)
	}
	for _, q := range order {
		idx := groups[q]
		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = pairs[i].Text
		}
		got, err := c.score(ctx, q, texts)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			scores[i] = got[j]
		}
	}
	return scores, nil
}

type rankedScore struct {
	Index          int      `json:"index"`
	Score          *float64 `json:"score"`
	RelevanceScore *float64 `json:"relevance_score"`
}

func (r rankedScore) value() float64 {
	if r.Score != nil {
		return *r.Score
	}
	if r.RelevanceScore != nil {
		return *r.RelevanceScore
	}
	return 0
}

func (c *HTTPClient) score(ctx context.Context, query string, texts []string) ([]float64, error) {
	var body any
	switch c.format {
	case FormatCohere:
		body = map[string]any{
			"query":     query,
			"documents": texts,
			"model":     c.model,
			"top_n":     len(texts),
		}
	default:
		body = map[string]any{"query": query, "texts": texts, "raw_scores": false}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode rerank request: %w", err)
	}

	var ranked []rankedScore
	err = retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("rerank: %s", resp.Status)
		}
		if resp.StatusCode >= 300 {
			return retry.Unrecoverable(fmt.Errorf("rerank: %s: %s", resp.Status, bytes.TrimSpace(payload)))
		}
		ranked, err = decodeScores(c.format, payload)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries)),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	out := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("%w: rerank index %d out of range", domain.ErrServiceUnavailable, r.Index)
		}
		out[r.Index] = r.value()
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: rerank returned no score for text %d", domain.ErrServiceUnavailable, i)
		}
	}
	return out, nil
}

func decodeScores(format string, payload []byte) ([]rankedScore, error) {
	if format == FormatCohere {
		var resp struct {
			Results []rankedScore `json:"results"`
		}
		if err := json.Unmarshal(payload, &resp); err != nil {
			return nil, fmt.Errorf("decode rerank response: %w", err)
		}
		return resp.Results, nil
	}
	var ranked []rankedScore
	if err := json.Unmarshal(payload, &ranked); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return ranked, nil
}
