package extractive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siterag/internal/domain"
	"siterag/internal/prompt"
)

func ask(t *testing.T, m *Model, content string) string {
	t.Helper()
	out, err := m.Chat(context.Background(), []domain.Message{{Role: "user", Content: content}})
	require.NoError(t, err)
	return out
}

func TestAnswerFromChunks(t *testing.T) {
	p := prompt.Compose("when do ferry services resume", "", domain.LongTermMemory{}, []string{
		"Storms hit the coast overnight.",
		"Ferry services resume tomorrow morning.",
	})
	got := ask(t, New(1), p)
	assert.Equal(t, "Ferry services resume tomorrow morning.", got)
}

func TestAnswerWithoutChunks(t *testing.T) {
	p := prompt.Compose("anything", "", domain.LongTermMemory{}, nil)
	assert.Equal(t, NoAnswer, ask(t, New(3), p))
}

func TestTopicLabel(t *testing.T) {
	got := ask(t, New(3), prompt.TopicPrompt("What is the weather in London?", "Rain."))
	assert.Equal(t, "weather london", got)

	got = ask(t, New(3), prompt.TopicPrompt("and then?", "Ferries resume tomorrow."))
	assert.Equal(t, "ferries resume tomorrow", got)
}

func TestChunkEndingLikeTopicInstructionStillAnswers(t *testing.T) {
	p := prompt.Compose("when do ferry services resume", "", domain.LongTermMemory{}, []string{
		"Ferry services resume tomorrow morning.",
		prompt.TopicInstruction,
	})
	assert.Equal(t, "Ferry services resume tomorrow morning.", ask(t, New(1), p))
}

func TestIsTopicPrompt(t *testing.T) {
	assert.True(t, isTopicPrompt(prompt.TopicPrompt("q", "a")))
	assert.False(t, isTopicPrompt(prompt.Compose("q", "", domain.LongTermMemory{}, []string{prompt.TopicInstruction})))
	assert.False(t, isTopicPrompt("Q: x\nA: y\n\nChunks:\n"+prompt.TopicInstruction))
}
