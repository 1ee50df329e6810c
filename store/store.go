// Package store holds the reference corpus vectors.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"compliance-rag/config"
	"compliance-rag/types"
)

// VectorStore is only ever mutated by Replace, which swaps the whole
// content or nothing.
type VectorStore interface {
	Count(ctx context.Context) (int, error)
	// Replace discards every stored chunk and stores chunks, preserving
	// their slice order as insertion order.
	Replace(ctx context.Context, chunks []types.Chunk) error
	// Search returns at most k chunks, highest similarity first, ties
	// broken by insertion order.
	Search(ctx context.Context, vec []float32, k int) ([]types.Chunk, error)
	Close() error
}

// New opens the backend selected by cfg.VectorBackend.
func New(ctx context.Context, cfg *config.Config) (VectorStore, error) {
	switch cfg.VectorBackend {
	case "sqlite":
		return NewSQLiteStore(cfg.VectorDir)
	case "postgres":
		return NewPostgresStore(ctx, cfg.Postgres.ConnString(), cfg.EmbedDim)
	case "qdrant":
		return NewQdrantStore(ctx, cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	}
	return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
}

func connectBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// rank orders chunks by score descending, then insertion order, and keeps k.
func rank(chunks []types.Chunk, k int) []types.Chunk {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].Seq < chunks[j].Seq
	})
	if k < len(chunks) {
		chunks = chunks[:k]
	}
	return chunks
}
