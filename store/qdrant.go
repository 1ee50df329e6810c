package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"compliance-rag/types"
)

// QdrantStore serves reads through an alias that always points at a fully
// written collection. Rebuilds write a new generation "<alias>_g<N>" and
// swap the alias in one call.
type QdrantStore struct {
	client *qdrant.Client
	alias  string
	logger *slog.Logger
}

func NewQdrantStore(ctx context.Context, host string, port int, alias string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	health := func() error {
		_, err := client.HealthCheck(ctx)
		return err
	}
	if err := backoff.Retry(health, backoff.WithContext(connectBackOff(), ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant unreachable: %w", err)
	}

	return &QdrantStore{client: client, alias: alias, logger: slog.Default()}, nil
}

// active returns the collection behind the alias, or "" when no index has
// been built yet.
func (s *QdrantStore) active(ctx context.Context) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == s.alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	current, err := s.active(ctx)
	if err != nil || current == "" {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.alias,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

// generation parses the N out of "<alias>_g<N>".
func (s *QdrantStore) generation(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, s.alias+"_g")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

func (s *QdrantStore) Replace(ctx context.Context, chunks []types.Chunk) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	next := 1
	var old []string
	for _, name := range collections {
		if n, ok := s.generation(name); ok {
			old = append(old, name)
			next = max(next, n+1)
		}
	}
	target := fmt.Sprintf("%s_g%d", s.alias, next)

	dim := 1
	if len(chunks) > 0 {
		dim = len(chunks[0].Embedding)
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: target,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", target, err)
	}

	if err := s.fill(ctx, target, chunks); err != nil {
		s.drop(target)
		return err
	}

	current, err := s.active(ctx)
	if err != nil {
		s.drop(target)
		return err
	}
	ops := []*qdrant.AliasOperations{}
	if current != "" {
		ops = append(ops, qdrant.NewAliasDelete(s.alias))
	}
	ops = append(ops, qdrant.NewAliasCreate(s.alias, target))
	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		s.drop(target)
		return fmt.Errorf("failed to switch alias to %s: %w", target, err)
	}

	for _, name := range old {
		s.drop(name)
	}
	s.logger.Info("qdrant index replaced", "collection", target, "chunks", len(chunks))
	return nil
}

func (s *QdrantStore) fill(ctx context.Context, collection string, chunks []types.Chunk) error {
	const batchSize = 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			c := chunks[j]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(c.ID.String()),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"seq":      int64(j),
					"source":   c.Source,
					"position": int64(c.Position),
					"content":  c.Content,
				}),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// drop removes a collection on a best-effort basis, independent of the
// caller's context which may already be cancelled.
func (s *QdrantStore) drop(name string) {
	if err := s.client.DeleteCollection(context.Background(), name); err != nil {
		s.logger.Warn("failed to delete qdrant collection", "collection", name, "err", err)
	}
}

func (s *QdrantStore) Search(ctx context.Context, vec []float32, k int) ([]types.Chunk, error) {
	if k <= 0 {
		return []types.Chunk{}, nil
	}
	current, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	if current == "" {
		return []types.Chunk{}, nil
	}

	// Over-fetch so equal scores at the cut can be re-ordered by seq.
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.alias,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(2 * k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	chunks := make([]types.Chunk, 0, len(results))
	for _, r := range results {
		payload := r.GetPayload()
		id, _ := uuid.Parse(r.GetId().GetUuid())
		chunks = append(chunks, types.Chunk{
			ID:       id,
			Source:   payload["source"].GetStringValue(),
			Position: int(payload["position"].GetIntegerValue()),
			Seq:      payload["seq"].GetIntegerValue(),
			Content:  payload["content"].GetStringValue(),
			Score:    float64(r.GetScore()),
		})
	}
	return rank(chunks, k), nil
}

func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
