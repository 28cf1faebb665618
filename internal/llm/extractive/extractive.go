// Package extractive answers prompts offline by picking sentences from the
// retrieved context instead of generating text.
package extractive

import (
	"context"
	"strings"

	"siterag/internal/domain"
	"siterag/internal/prompt"
	"siterag/internal/summarizer"
)

// NoAnswer is returned when the prompt carries no usable context.
const NoAnswer = "I could not find an answer in the indexed pages."

// Model implements domain.ChatModel. Answer prompts get a query-focused
// extract of the chunk block; topic prompts get a keyword label.
type Model struct {
	summarizer   *summarizer.FrequencySummarizer
	maxSentences int
	labelWords   int
}

func New(maxSentences int) *Model {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Model{
		summarizer:   summarizer.NewFrequencySummarizer(),
		maxSentences: maxSentences,
		labelWords:   3,
	}
}

func (m *Model) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var text string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" || messages[i].Role == "" {
			text = messages[i].Content
			break
		}
	}
	if isTopicPrompt(text) {
		return m.label(text), nil
	}
	return m.answer(text), nil
}

// isTopicPrompt matches the "Q: ..\nA: ..\n\n<instruction>" shape. Answer
// prompts open with the query line and carry a chunk block.
func isTopicPrompt(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, "Q: ") &&
		strings.HasSuffix(text, prompt.TopicInstruction) &&
		!strings.Contains(text, "\n"+prompt.ChunksHeader+"\n")
}

func (m *Model) answer(text string) string {
	query, chunks := splitPrompt(text)
	if strings.TrimSpace(chunks) == "" {
		return NoAnswer
	}
	if out := m.summarizer.Focus(query, chunks, m.maxSentences); out != "" {
		return out
	}
	return NoAnswer
}

// label builds a topic label from the question, falling back to the answer.
func (m *Model) label(text string) string {
	var q, a string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "Q: "):
			q = strings.TrimPrefix(line, "Q: ")
		case strings.HasPrefix(line, "A: "):
			a = strings.TrimPrefix(line, "A: ")
		}
	}
	words := m.summarizer.Keywords(q, m.labelWords)
	if len(words) == 0 {
		words = m.summarizer.Keywords(a, m.labelWords)
	}
	return strings.Join(words, " ")
}

// splitPrompt returns the user query and the chunk block of an answer prompt.
func splitPrompt(text string) (query, chunks string) {
	first, _, _ := strings.Cut(text, "\n")
	if q, ok := strings.CutPrefix(first, "The user query is: "); ok {
		query = strings.TrimSuffix(q, ".")
	}
	if i := strings.LastIndex(text, prompt.ChunksHeader+"\n"); i >= 0 {
		chunks = text[i+len(prompt.ChunksHeader)+1:]
	}
	return query, chunks
}
