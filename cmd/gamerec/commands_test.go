package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishseta/game-recommender/internal/embedder"
	"github.com/krishseta/game-recommender/internal/snapshot"
)

func TestCheckCompatible(t *testing.T) {
	emb, err := embedder.NewLocalProvider(8, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		snap    *snapshot.Snapshot
		wantErr bool
	}{
		{name: "matching dimension", snap: &snapshot.Snapshot{ID: "a", Dimension: 8, Provider: emb.Provider()}},
		{name: "other provider only warns", snap: &snapshot.Snapshot{ID: "b", Dimension: 8, Provider: "jina"}},
		{name: "dimension mismatch", snap: &snapshot.Snapshot{ID: "c", Dimension: 768, Provider: emb.Provider()}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCompatible(tt.snap, emb)
			if tt.wantErr {
				assert.ErrorContains(t, err, "dimension 768")
				return
			}
			assert.NoError(t, err)
		})
	}
}
