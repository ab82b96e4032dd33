package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"docchat/internal/models"
	"docchat/internal/util"

	_ "modernc.org/sqlite"
)

// SQLite stores collections in a single database file under the data
// root. Vectors are little-endian float32 blobs; similarity is computed
// in Go, which is fine at the collection sizes this service targets.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(dataDir string) (*SQLite, error) {
	if err := util.EnsureDir(dataDir); err != nil {
		return nil, err
	}
	path := filepath.Join(dataDir, "docchat.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS collections (
  name       TEXT PRIMARY KEY,
  dim        INTEGER NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
  seq         INTEGER PRIMARY KEY AUTOINCREMENT,
  chunk_id    TEXT NOT NULL,
  collection  TEXT NOT NULL,
  source      TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  text        TEXT NOT NULL,
  embedding   BLOB NOT NULL,
  UNIQUE (collection, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection);`)
	if err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, collection string, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var dim int
	err = tx.QueryRowContext(ctx, `SELECT dim FROM collections WHERE name = ?`, collection).Scan(&dim)
	switch {
	case err == sql.ErrNoRows:
		dim = len(vectors[0])
		if _, err := tx.ExecContext(ctx, `INSERT INTO collections (name, dim, created_at) VALUES (?, ?, ?)`,
			collection, dim, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	case err != nil:
		return fmt.Errorf("read collection %s: %w", collection, err)
	}
	if err := validateUpsert(chunks, vectors, dim); err != nil {
		return err
	}

	for i, c := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO chunks (chunk_id, collection, source, chunk_index, text, embedding)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, chunk_id)
DO UPDATE SET text = excluded.text, embedding = excluded.embedding`,
			c.ChunkID, collection, c.Source, c.ChunkIndex, c.Text, vectorToBlob(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, collection string, query []float32, topK int) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = 4
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, source, chunk_index, text, embedding
FROM chunks
WHERE collection = ?
ORDER BY seq ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	scored := make([]models.ScoredChunk, 0, 64)
	for rows.Next() {
		var (
			c    models.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.Source, &c.ChunkIndex, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Collection = collection
		scored = append(scored, models.ScoredChunk{Chunk: c, Score: cosine(blobToVector(blob), query)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func (s *SQLite) Delete(ctx context.Context, collection string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, collection); err != nil {
		return false, fmt.Errorf("delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection)
	if err != nil {
		return false, fmt.Errorf("delete collection: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete tx: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error { return s.db.Close() }
