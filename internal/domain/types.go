package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Paragraph is a cleaned piece of page text with its provenance.
// Depth is the remaining hop budget at the page it was found on.
type Paragraph struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	Depth     int    `json:"depth"`
}

// ChunkMetadata is stored next to every vector in the vector store.
type ChunkMetadata struct {
	Text      string `json:"text"`
	SourceURL string `json:"source_url"`
	Depth     int    `json:"depth"`
}

// Validate reports whether the metadata can be indexed.
func (m ChunkMetadata) Validate() error {
	if m.Text == "" {
		return fmt.Errorf("%w: chunk text is empty", ErrInvalidChunk)
	}
	if m.SourceURL == "" {
		return fmt.Errorf("%w: chunk source url is empty", ErrInvalidChunk)
	}
	if m.Depth < 0 {
		return fmt.Errorf("%w: negative depth %d", ErrInvalidChunk, m.Depth)
	}
	return nil
}

// Hit is a vector store query result.
type Hit struct {
	ID       string
	Metadata ChunkMetadata
	Score    float64
}

// Pair is one cross-encoder input.
type Pair struct {
	Query string
	Text  string
}

// Message is a single chat turn sent to a ChatModel.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is one answered turn. Entries are never modified after creation.
type HistoryEntry struct {
	Query      string `json:"query"`
	Answer     string `json:"answer"`
	TopicLabel string `json:"topic_label"`
}

// NewHistoryEntry validates and builds a HistoryEntry.
func NewHistoryEntry(query, answer, topicLabel string) (HistoryEntry, error) {
	if query == "" {
		return HistoryEntry{}, fmt.Errorf("%w: history entry without query", ErrInvalidRequest)
	}
	return HistoryEntry{Query: query, Answer: answer, TopicLabel: topicLabel}, nil
}

// History is the persisted conversation, oldest first.
type History struct {
	Topics []HistoryEntry `json:"topics"`
}

// Last returns the most recent entry.
func (h History) Last() (HistoryEntry, bool) {
	if len(h.Topics) == 0 {
		return HistoryEntry{}, false
	}
	return h.Topics[len(h.Topics)-1], true
}

// LongTermMemory is an optional recalled entry. It encodes as {} when empty.
type LongTermMemory struct {
	Entry *HistoryEntry
}

// IsEmpty reports whether nothing was recalled.
func (l LongTermMemory) IsEmpty() bool { return l.Entry == nil }

func (l LongTermMemory) MarshalJSON() ([]byte, error) {
	if l.Entry == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l.Entry)
}

func (l *LongTermMemory) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		l.Entry = nil
		return nil
	}
	var e HistoryEntry
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return err
	}
	l.Entry = &e
	return nil
}

// QueryRequest is the input of the question-answering pipeline.
type QueryRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	MinScore float64 `json:"min_score"`
}

// Validate checks the request bounds.
func (r QueryRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: query is empty", ErrInvalidRequest)
	}
	if r.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidRequest, r.TopK)
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("%w: min_score must be in [0,1], got %g", ErrInvalidRequest, r.MinScore)
	}
	return nil
}

// RerankedChunk is a retrieved chunk with its cross-encoder score.
type RerankedChunk struct {
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	SourceURL string  `json:"source_url"`
	Depth     int     `json:"depth"`
}

// QueryResponse is the output of the question-answering pipeline.
type QueryResponse struct {
	Answer          string          `json:"answer"`
	RelevantChunks  []RerankedChunk `json:"relevant_chunks"`
	UsedPrompt      string          `json:"used_prompt"`
	ShortTermMemory string          `json:"short_term_memory"`
	LongTermMemory  LongTermMemory  `json:"long_term_memory"`
}
