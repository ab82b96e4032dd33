package store

import (
	"context"
	"fmt"

	"docchat/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps collections in pgvector-enabled PostgreSQL, with
// similarity ordering pushed into SQL. Requires the vector extension.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p := &Postgres{pool: pool}
	if err := p.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) initSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS collections (
  name       TEXT PRIMARY KEY,
  dim        INTEGER NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chunks (
  seq         BIGSERIAL,
  chunk_id    TEXT NOT NULL,
  collection  TEXT NOT NULL,
  source      TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  text        TEXT NOT NULL,
  embedding   vector NOT NULL,
  PRIMARY KEY (collection, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);`)
	if err != nil {
		return fmt.Errorf("init postgres schema: %w", err)
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, collection string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var dim int
	err = tx.QueryRow(ctx, `
INSERT INTO collections (name, dim) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING dim`, collection, len(vectors[0])).Scan(&dim)
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", collection, err)
	}
	if err := validateUpsert(chunks, vectors, dim); err != nil {
		return err
	}

	for i, c := range chunks {
		_, err := tx.Exec(ctx, `
INSERT INTO chunks (chunk_id, collection, source, chunk_index, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (collection, chunk_id)
DO UPDATE SET text = EXCLUDED.text, embedding = EXCLUDED.embedding`,
			c.ChunkID, collection, c.Source, c.ChunkIndex, c.Text, ToLiteral(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (p *Postgres) Search(ctx context.Context, collection string, query []float32, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = 4
	}
	rows, err := p.pool.Query(ctx, `
SELECT chunk_id, source, chunk_index, text, 1 - (embedding <=> $2::vector) AS score
FROM chunks
WHERE collection = $1
ORDER BY embedding <=> $2::vector ASC, seq ASC
LIMIT $3`, collection, ToLiteral(query), topK)
	if err != nil {
		return nil, fmt.Errorf("query vector search: %w", err)
	}
	defer rows.Close()

	results := make([]models.ScoredChunk, 0, topK)
	for rows.Next() {
		var r models.ScoredChunk
		if err := rows.Scan(&r.ChunkID, &r.Source, &r.ChunkIndex, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		r.Collection = collection
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

func (p *Postgres) Delete(ctx context.Context, collection string) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE collection = $1`, collection); err != nil {
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, collection)
	if err != nil {
		return false, fmt.Errorf("delete collection: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit delete tx: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = $1`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
