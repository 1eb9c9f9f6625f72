package embedder

import (
	"strings"
	"unicode"
)

// Tokenizer measures and truncates text in a model's own token units.
type Tokenizer interface {
	// CountTokens returns the number of tokens in text.
	CountTokens(text string) int
	// TruncateTokens returns the prefix of text holding at most max tokens.
	TruncateTokens(text string, max int) string
}

// WordTokenizer counts whitespace-delimited words. Remote providers do not
// expose their tokenizer, so words are the closest stable approximation.
type WordTokenizer struct{}

func (WordTokenizer) CountTokens(text string) int {
	return len(strings.Fields(text))
}

func (WordTokenizer) TruncateTokens(text string, max int) string {
	if max <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) <= max {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max], " ")
}

// TokenizerFor returns e's own tokenizer when it has one, otherwise
// WordTokenizer.
func TokenizerFor(e Embedder) Tokenizer {
	if t, ok := e.(Tokenizer); ok {
		return t
	}
	return WordTokenizer{}
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lexTokens splits text into lowercase alphanumeric runs.
func lexTokens(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool { return !isTokenRune(r) })
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}
