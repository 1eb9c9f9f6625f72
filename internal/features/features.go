// Package features builds the text that represents a game to the embedding
// model: name, tags, then a token-bounded prefix of the description.
package features

import (
	"strings"

	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/pkg/types"
)

// DefaultMaxTokens bounds the description component.
const DefaultMaxTokens = 512

// Builder derives text features. The zero value uses DefaultMaxTokens and
// embedder.WordTokenizer.
type Builder struct {
	MaxTokens int
	Tokenizer embedder.Tokenizer
}

// NewBuilder returns a builder that measures descriptions with the given
// embedder's own tokenizer.
func NewBuilder(emb embedder.Embedder, maxTokens int) *Builder {
	return &Builder{MaxTokens: maxTokens, Tokenizer: embedder.TokenizerFor(emb)}
}

// Build returns name + " " + tags + " " + truncated description with
// whitespace runs collapsed to single spaces. The description is truncated
// here, before embedding, so no model capacity is spent on text that would
// be cut anyway.
func (b *Builder) Build(g *types.Game) string {
	parts := []string{
		g.Name,
		strings.Join(g.Tags, " "),
		b.truncate(g.Description),
	}
	return collapse(strings.Join(parts, " "))
}

// Apply sets TextFeature on every game.
func (b *Builder) Apply(games []*types.Game) {
	for _, g := range games {
		g.TextFeature = b.Build(g)
	}
}

func (b *Builder) truncate(text string) string {
	max := b.MaxTokens
	if max <= 0 {
		max = DefaultMaxTokens
	}
	tok := b.Tokenizer
	if tok == nil {
		tok = embedder.WordTokenizer{}
	}
	if tok.CountTokens(text) <= max {
		return text
	}
	return tok.TruncateTokens(text, max)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
