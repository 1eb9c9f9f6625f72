package embedder

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	texts := []string{
		"short",
		"open world survival crafting",
		strings.Repeat("a long store page description with many words ", 40),
	}

	for _, text := range texts {
		b.Run(fmt.Sprintf("len=%d", len(text)), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_ = ComputeHash(text)
			}
		})
	}
}

func BenchmarkLocalProvider(b *testing.B) {
	p, _ := NewLocalProvider(0, nil)
	ctx := context.Background()
	text := strings.Repeat("explore a procedurally generated galaxy and build bases ", 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	}
}
