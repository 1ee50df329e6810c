// Package service builds the reference index on demand.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"compliance-rag/config"
	"compliance-rag/loader/internal"
	"compliance-rag/model"
	"compliance-rag/store"
	"compliance-rag/types"
)

const embedBatchSize = 64

// Builder turns the corpus directory into the contents of a VectorStore.
// Builds are serialised; a failed build leaves the store as it was.
type Builder struct {
	logger    *slog.Logger
	store     store.VectorStore
	embedder  model.Embedder
	corpusDir string
	chunkSize int
	overlap   int

	mu sync.Mutex
}

func New(cfg *config.Config, vs store.VectorStore, embedder model.Embedder) *Builder {
	return &Builder{
		logger:    slog.Default(),
		store:     vs,
		embedder:  embedder,
		corpusDir: cfg.CorpusDir,
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
	}
}

func buildError(subject string, err error) error {
	return types.NewStageError(types.ErrIndexBuildFailed, "index", subject, err)
}

// Build indexes the corpus. With refresh false a non-empty store is left
// untouched; with refresh true the store is rebuilt from scratch.
func (b *Builder) Build(ctx context.Context, refresh bool) (*types.BuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()

	chunker, err := internal.NewChunker(b.chunkSize, b.overlap)
	if err != nil {
		return nil, buildError("chunking", err)
	}

	if !refresh {
		n, err := b.store.Count(ctx)
		if err != nil {
			return nil, buildError("store", err)
		}
		if n > 0 {
			b.logger.Info("index already built, skipping", "chunks", n)
			return &types.BuildResult{Rebuilt: false, Chunks: n, Duration: time.Since(start)}, nil
		}
	}

	docs, skipped, err := internal.ScanCorpus(b.corpusDir)
	if err != nil {
		return nil, buildError(b.corpusDir, err)
	}
	for _, s := range skipped {
		b.logger.Warn("skipping corpus file", "path", s.Path, "reason", s.Reason)
	}

	var chunks []types.Chunk
	for _, doc := range docs {
		for pos, content := range chunker.Split(doc.Text) {
			chunks = append(chunks, types.Chunk{
				ID:       uuid.New(),
				Source:   doc.Rel,
				Position: pos,
				Seq:      int64(len(chunks)),
				Content:  content,
			})
		}
	}

	if err := b.embed(ctx, chunks); err != nil {
		return nil, buildError("embedding", err)
	}

	if err := b.store.Replace(ctx, chunks); err != nil {
		return nil, buildError("store", err)
	}

	result := &types.BuildResult{
		Rebuilt:   true,
		Documents: len(docs),
		Chunks:    len(chunks),
		Skipped:   skipped,
		Duration:  time.Since(start),
	}
	b.logger.Info("index rebuilt",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"skipped", len(skipped),
		"duration", result.Duration,
	)
	return result, nil
}

func (b *Builder) embed(ctx context.Context, chunks []types.Chunk) error {
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := min(i+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-i)
		for _, c := range chunks[i:end] {
			texts = append(texts, c.Content)
		}

		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("chunks %d-%d: %w", i, end, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("chunks %d-%d: got %d embeddings", i, end, len(vecs))
		}
		for j, v := range vecs {
			chunks[i+j].Embedding = v
		}
		b.logger.Debug("embedded chunks", "from", i, "to", end, "total", len(chunks))
	}
	return nil
}
