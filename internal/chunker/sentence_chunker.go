package chunker

import (
	"regexp"
	"strings"

	"siterag/internal/domain"
)

// SentenceChunker splits paragraphs into sentence windows with overlap.
// Every window keeps the paragraph's source URL and depth.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(p domain.Paragraph) ([]domain.Paragraph, error) {
	sentences := c.split(p.Text)
	if len(sentences) == 0 {
		return nil, nil
	}
	var out []domain.Paragraph
	for i := 0; i < len(sentences); {
		end := min(i+c.sentencesPerChunk, len(sentences))
		out = append(out, domain.Paragraph{
			Text:      strings.Join(sentences[i:end], " "),
			SourceURL: p.SourceURL,
			Depth:     p.Depth,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return out, nil
}

func (c *SentenceChunker) split(text string) []string {
	matches := c.splitter.FindAllStringIndex(text, -1)
	var sentences []string
	last := 0
	for _, m := range matches {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	// trailing text without terminal punctuation
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// Passthrough keeps each paragraph as a single chunk.
type Passthrough struct{}

func (Passthrough) Chunk(p domain.Paragraph) ([]domain.Paragraph, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, nil
	}
	return []domain.Paragraph{p}, nil
}
