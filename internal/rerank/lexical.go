package rerank

import (
	"context"
	"math"
	"regexp"
	"strings"

	"siterag/internal/domain"
)

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Lexical scores pairs by the Ochiai coefficient of their token sets,
// |A∩B| / sqrt(|A||B|), in [0,1]. It stands in for a cross-encoder when
// no model server is available.
type Lexical struct{}

func (Lexical) Predict(ctx context.Context, pairs []domain.Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	cache := make(map[string]map[string]struct{})
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		qset, ok := cache[p.Query]
		if !ok {
			qset = tokenSet(p.Query)
			cache[p.Query] = qset
		}
		scores[i] = ochiai(qset, tokenSet(p.Text))
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
