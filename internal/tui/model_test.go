package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/domain"
)

type fakeQA struct {
	got  domain.QueryRequest
	resp domain.QueryResponse
	err  error
}

func (f *fakeQA) HandleQuery(_ context.Context, req domain.QueryRequest) (domain.QueryResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestTokenOverlapScore(t *testing.T) {
	q := toTokenSet("Rain in London")
	assert.Equal(t, 2, tokenOverlapScore(q, "London expects rain, rain and more rain."))
	assert.Equal(t, 0, tokenOverlapScore(q, "Football final ends in a draw."))
}

func TestHighlightBestSentenceKeepsText(t *testing.T) {
	out := highlightBestSentence("Football ended level. Rain hits London.", "london rain")
	assert.Contains(t, out, "Football ended level.")
	assert.Contains(t, out, "Rain hits London.")
	assert.Equal(t, "", highlightBestSentence("", "q"))
}

func TestEnterRunsQueryAndShowsAnswer(t *testing.T) {
	svc := &fakeQA{resp: domain.QueryResponse{
		Answer:         "Heavy rain tomorrow.",
		RelevantChunks: []domain.RerankedChunk{{Text: "Rain hits London.", Score: 0.8}, {Text: "Ferries resume.", Score: 0.4}},
	}}
	m := New(svc, "3 chunks indexed", Options{TopK: 2, MinScore: 0.3})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m = next.(Model)

	m.input.SetValue("rain in london")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, domain.QueryRequest{Query: "rain in london", TopK: 2, MinScore: 0.3}, svc.got)
	assert.Contains(t, m.renderAnswer(), "Heavy rain tomorrow.")
	assert.Contains(t, m.renderAnswer(), "Chunk 1/2")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 1, m.cursor)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	assert.Equal(t, 0, m.cursor)
}

func TestQueryErrorShowsStatus(t *testing.T) {
	m := New(&fakeQA{err: errors.New("no indexed chunks")}, "", Options{})
	m.input.SetValue("anything")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	next, _ = m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Error: no indexed chunks", m.status)
	assert.Nil(t, m.resp)
}
