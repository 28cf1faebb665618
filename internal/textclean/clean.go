// Package textclean normalizes scraped and generated text.
package textclean

import (
	"regexp"
	"strings"
)

var (
	bracketed    = regexp.MustCompile(`\[.*?\]`)
	parenthetic  = regexp.MustCompile(`\(.*?\)`)
	nonPrintable = regexp.MustCompile(`[^\x20-\x7E]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean drops [bracketed] and (parenthetical) spans, replaces anything
// outside printable ASCII with a space and collapses whitespace.
func Clean(text string) string {
	text = bracketed.ReplaceAllString(text, "")
	text = parenthetic.ReplaceAllString(text, "")
	text = nonPrintable.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
