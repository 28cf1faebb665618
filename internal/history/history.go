// Package history persists the conversation as one {"topics": [...]} record
// that is fully rewritten on every turn.
package history

import (
	"encoding/json"
	"fmt"

	"siterag/internal/domain"
)

// Record returns a new history with the turn appended. h is not modified.
func Record(h domain.History, query, answer, topicLabel string) (domain.History, error) {
	entry, err := domain.NewHistoryEntry(query, answer, topicLabel)
	if err != nil {
		return h, err
	}
	topics := make([]domain.HistoryEntry, len(h.Topics), len(h.Topics)+1)
	copy(topics, h.Topics)
	return domain.History{Topics: append(topics, entry)}, nil
}

// Appender returns an update function that records one turn on top of
// whatever history is current when the store applies it.
func Appender(query, answer, topicLabel string) func(domain.History) (domain.History, error) {
	return func(h domain.History) (domain.History, error) {
		return Record(h, query, answer, topicLabel)
	}
}

func encode(h domain.History) ([]byte, error) {
	if h.Topics == nil {
		h.Topics = []domain.HistoryEntry{}
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

func decode(data []byte) (domain.History, error) {
	var h domain.History
	if err := json.Unmarshal(data, &h); err != nil {
		return domain.History{}, fmt.Errorf("decode history: %w", err)
	}
	if h.Topics == nil {
		h.Topics = []domain.HistoryEntry{}
	}
	return h, nil
}
