package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"compliance-rag/types"
)

const sqliteFile = "index.db"

// SQLiteStore keeps chunks and their embeddings in a single local database
// file. Similarity is computed in process.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating vector directory: %w", err)
	}
	path := filepath.Join(dir, sqliteFile)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS chunks (
			seq       INTEGER PRIMARY KEY,
			id        TEXT NOT NULL,
			source    TEXT NOT NULL,
			position  INTEGER NOT NULL,
			content   TEXT NOT NULL,
			embedding BLOB NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path is the database file.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, chunks []types.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (seq, id, source, position, content, embedding) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, int64(i), c.ID.String(), c.Source, c.Position, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("inserting chunk %d of %s: %w", c.Position, c.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, vec []float32, k int) ([]types.Chunk, error) {
	if k <= 0 {
		return []types.Chunk{}, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT seq, id, source, position, content, embedding FROM chunks ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := []types.Chunk{}
	for rows.Next() {
		var (
			c    types.Chunk
			id   string
			blob []byte
		)
		if err := rows.Scan(&c.Seq, &id, &c.Source, &c.Position, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.ID, _ = uuid.Parse(id)
		c.Score = cosine(vec, decodeVector(blob))
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return rank(chunks, k), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// cosine is 0 when either vector has no magnitude or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
