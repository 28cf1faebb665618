package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello world", "Hello world"},
		{"brackets", "Storm hits coast[1] today", "Storm hits coast today"},
		{"parentheses", "The BBC (British Broadcasting Corporation) said", "The BBC said"},
		{"non ascii", "café — open", "caf open"},
		{"whitespace", "  a \n\t b  ", "a b"},
		{"only annotations", "[edit] (see below)", ""},
		{"non greedy", "a (b) c (d) e", "a c e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	in := "Markets [update] fell (sharply) on «Friday»"
	once := Clean(in)
	assert.Equal(t, once, Clean(once))
}
