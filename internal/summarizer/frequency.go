package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	tokenPattern *regexp.Regexp
	splitter     *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		splitter:     regexp.MustCompile(`(?m)(?U)([^.!?\n]+[.!?\n])`),
		stopwords:    defaultStopwords(),
	}
}

// Summarize returns up to maxSentences of text, ranked by token frequency
// and kept in their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	return s.Focus("", text, maxSentences), nil
}

// Focus is Summarize with sentences sharing terms with query boosted.
// With an empty query it ranks by frequency alone.
func (s *FrequencySummarizer) Focus(query, text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := s.sentences(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	freq := s.frequencies(sentences)
	focus := make(map[string]struct{})
	for _, tok := range s.contentTokens(query) {
		focus[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			if _, ok := focus[tok]; ok {
				score += 1
			}
		}
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}

// Keywords returns the n most frequent non-stopword terms of text, ties
// broken by first occurrence.
func (s *FrequencySummarizer) Keywords(text string, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, tok := range s.contentTokens(text) {
		if _, ok := counts[tok]; !ok {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if n < len(order) {
		order = order[:n]
	}
	return order
}

func (s *FrequencySummarizer) sentences(text string) []string {
	var out []string
	for _, sent := range s.splitter.FindAllString(text+"\n", -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			out = append(out, sent)
		}
	}
	return out
}

// frequencies returns term frequencies over sentences scaled to [0,1].
func (s *FrequencySummarizer) frequencies(sentences []string) map[string]float64 {
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.contentTokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

func (s *FrequencySummarizer) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func (s *FrequencySummarizer) contentTokens(text string) []string {
	toks := s.tokens(text)
	out := toks[:0]
	for _, t := range toks {
		if _, ok := s.stopwords[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "do", "does", "did", "has", "have", "had", "i", "you", "he", "she", "we", "they", "its", "their", "there", "said", "says",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
