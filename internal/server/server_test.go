package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/domain"
	"siterag/internal/metrics"
)

type fakeService struct {
	ready   bool
	got     domain.QueryRequest
	resp    domain.QueryResponse
	err     error
	history domain.History
	cleared bool
	block   bool
}

func (f *fakeService) Ready() bool { return f.ready }

func (f *fakeService) HandleQuery(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return domain.QueryResponse{}, ctx.Err()
	}
	if err := req.Validate(); err != nil {
		return domain.QueryResponse{}, err
	}
	return f.resp, f.err
}

func (f *fakeService) History(context.Context) (domain.History, error) { return f.history, nil }

func (f *fakeService) ClearHistory(context.Context) error {
	f.cleared = true
	return nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestQueryAppliesDefaults(t *testing.T) {
	svc := &fakeService{ready: true, resp: domain.QueryResponse{Answer: "yes"}}
	h := New(svc, Config{DefaultTopK: 10, DefaultMinScore: 0.3}).Handler()

	rec := do(t, h, http.MethodPost, "/query", `{"query":"is it raining?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.QueryRequest{Query: "is it raining?", TopK: 10, MinScore: 0.3}, svc.got)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "yes", out["answer"])
	assert.Equal(t, []any{}, out["relevant_chunks"])
	assert.Equal(t, map[string]any{}, out["long_term_memory"])
	assert.Equal(t, "", out["short_term_memory"])

	rec = do(t, h, http.MethodPost, "/query", `{"query":"q","top_k":3,"min_score":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.QueryRequest{Query: "q", TopK: 3, MinScore: 0}, svc.got)
}

func TestQueryResponseShape(t *testing.T) {
	entry := domain.HistoryEntry{Query: "Q1", Answer: "A1", TopicLabel: "geography"}
	svc := &fakeService{ready: true, resp: domain.QueryResponse{
		Answer:          "Paris",
		RelevantChunks:  []domain.RerankedChunk{{Text: "t", Score: 0.9, SourceURL: "https://x.test/", Depth: 2}},
		UsedPrompt:      "p",
		ShortTermMemory: "Q: Q1 A: A1",
		LongTermMemory:  domain.LongTermMemory{Entry: &entry},
	}}
	rec := do(t, New(svc, Config{}).Handler(), http.MethodPost, "/query", `{"query":"capital?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"answer":"Paris",
		"relevant_chunks":[{"text":"t","score":0.9,"source_url":"https://x.test/","depth":2}],
		"used_prompt":"p",
		"short_term_memory":"Q: Q1 A: A1",
		"long_term_memory":{"query":"Q1","answer":"A1","topic_label":"geography"}
	}`, rec.Body.String())
}

func TestQueryErrors(t *testing.T) {
	cases := []struct {
		name   string
		svc    *fakeService
		body   string
		status int
		detail string
	}{
		{"empty corpus", &fakeService{ready: true, err: domain.ErrEmptyCorpus}, `{"query":"q"}`, http.StatusNotFound, "No indexed chunks available."},
		{"bad json", &fakeService{ready: true}, `{`, http.StatusBadRequest, ""},
		{"bad top_k", &fakeService{ready: true}, `{"query":"q","top_k":0}`, http.StatusBadRequest, ""},
		{"not ready", &fakeService{err: domain.ErrNotReady}, `{"query":"q"}`, http.StatusServiceUnavailable, ""},
		{"upstream down", &fakeService{ready: true, err: fmt.Errorf("%w: boom", domain.ErrServiceUnavailable)}, `{"query":"q"}`, http.StatusServiceUnavailable, ""},
		{"unexpected", &fakeService{ready: true, err: fmt.Errorf("disk full")}, `{"query":"q"}`, http.StatusInternalServerError, "Internal error."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, New(tc.svc, Config{DefaultMinScore: 0.3}).Handler(), http.MethodPost, "/query", tc.body)
			assert.Equal(t, tc.status, rec.Code)
			var out map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			if tc.detail != "" {
				assert.Equal(t, tc.detail, out["detail"])
			} else {
				assert.NotEmpty(t, out["detail"])
			}
		})
	}
}

func TestQueryTimeout(t *testing.T) {
	svc := &fakeService{ready: true, block: true}
	rec := do(t, New(svc, Config{RequestTimeout: 10 * time.Millisecond}).Handler(), http.MethodPost, "/query", `{"query":"q"}`)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	svc := &fakeService{history: domain.History{Topics: []domain.HistoryEntry{{Query: "q", Answer: "a", TopicLabel: "t"}}}}
	h := New(svc, Config{}).Handler()

	rec := do(t, h, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"topics":[{"query":"q","answer":"a","topic_label":"t"}]}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/history", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, svc.cleared)

	svc.history = domain.History{}
	rec = do(t, h, http.MethodGet, "/history", "")
	assert.JSONEq(t, `{"topics":[]}`, rec.Body.String())
}

func TestHealthReadinessMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.SetIndexed(3)
	svc := &fakeService{}
	h := New(svc, Config{Gatherer: reg}).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)
	svc.ready = true
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "siterag_indexed_chunks 3")

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/query", "").Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := New(&fakeService{}, Config{}).Handler()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}
