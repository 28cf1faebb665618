// Package prompt assembles the prompts sent to the chat model.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"siterag/internal/domain"
)

const (
	// ChunksHeader introduces the retrieved context block.
	ChunksHeader = "Chunks:"
	// TopicInstruction closes the topic-label prompt.
	TopicInstruction = "Give a short topic label."

	instruction   = "Answer the user's question using the context below."
	shortTermHead = "Short-term memory for follow-up questions (Q is not the current turn's user query but the previously answered user query): "
	longTermHead  = "Long-term memory for previous discussed topics: "
)

// Compose builds the answer prompt. Sections appear in a fixed order and
// the memory sections only when non-empty.
func Compose(query, shortTerm string, longTerm domain.LongTermMemory, texts []string) string {
	lines := []string{
		fmt.Sprintf("The user query is: %s.", query),
		instruction,
	}
	if shortTerm != "" {
		lines = append(lines, shortTermHead+shortTerm)
	}
	if !longTerm.IsEmpty() {
		lines = append(lines, longTermHead+encodeEntry(*longTerm.Entry))
	}
	lines = append(lines, "\n"+ChunksHeader+"\n"+strings.Join(texts, "\n"))
	return strings.Join(lines, "\n")
}

// TopicPrompt asks for a short label of a just-answered turn.
func TopicPrompt(query, answer string) string {
	return fmt.Sprintf("Q: %s\nA: %s\n\n%s", query, answer, TopicInstruction)
}

func encodeEntry(e domain.HistoryEntry) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// HistoryEntry holds only strings, so encoding cannot fail.
	_ = enc.Encode(e)
	return strings.TrimRight(buf.String(), "\n")
}
