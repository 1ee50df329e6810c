package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"compliance-rag/types"
)

type PostgresStore struct {
	pool   *pgxpool.Pool
	dim    int
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, dim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	ping := func() error { return pool.Ping(ctx) }
	if err := backoff.Retry(ping, backoff.WithContext(connectBackOff(), ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	p := &PostgresStore{pool: pool, dim: dim, logger: slog.Default()}
	if err := p.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return p, nil
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS reference_chunks (
		seq       BIGINT PRIMARY KEY,
		id        UUID NOT NULL,
		source    TEXT NOT NULL,
		position  INT NOT NULL,
		content   TEXT NOT NULL,
		embedding vector(%d) NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reference_chunks_source ON reference_chunks(source);
	`, p.dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reference_chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Replace runs in one transaction; concurrent readers keep seeing the old
// rows until it commits.
func (p *PostgresStore) Replace(ctx context.Context, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM reference_chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	const insert = `
	INSERT INTO reference_chunks (seq, id, source, position, content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	const batchSize = 500
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			c := chunks[i]
			batch.Queue(insert, int64(i), c.ID, c.Source, c.Position, c.Content, pgvector.NewVector(c.Embedding))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting chunks %d-%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	p.logger.Debug("postgres index replaced", "chunks", len(chunks))
	return nil
}

func (p *PostgresStore) Search(ctx context.Context, queryVec []float32, k int) ([]types.Chunk, error) {
	if k <= 0 {
		return []types.Chunk{}, nil
	}
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT id, source, position, seq, content, 1 - (embedding <=> $1) AS score
		FROM reference_chunks
		ORDER BY embedding <=> $1, seq
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var c types.Chunk
		if err := rows.Scan(&c.ID, &c.Source, &c.Position, &c.Seq, &c.Content, &c.Score); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
