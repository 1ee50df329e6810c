// Package retriever finds the reference chunks closest to a text snippet.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"compliance-rag/model"
	"compliance-rag/store"
	"compliance-rag/types"
)

type Retriever struct {
	store    store.VectorStore
	embedder model.Embedder
}

func New(vs store.VectorStore, embedder model.Embedder) *Retriever {
	return &Retriever{store: vs, embedder: embedder}
}

// Retrieve returns up to k chunks, most similar first. It never writes to
// the store; an empty store or a blank snippet yields an empty slice without
// calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, snippet string, k int) ([]types.Chunk, error) {
	if k <= 0 || strings.TrimSpace(snippet) == "" {
		return []types.Chunk{}, nil
	}

	n, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count reference index: %w", err)
	}
	if n == 0 {
		return []types.Chunk{}, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{snippet})
	if err != nil {
		return nil, fmt.Errorf("embed snippet: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed snippet: got %d vectors", len(vecs))
	}

	chunks, err := r.store.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, fmt.Errorf("search reference index: %w", err)
	}
	if chunks == nil {
		chunks = []types.Chunk{}
	}
	return chunks, nil
}
