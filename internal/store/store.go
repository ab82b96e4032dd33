package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"docchat/internal/config"
	"docchat/internal/models"
)

var (
	// ErrDimensionMismatch is returned when an upserted vector does not
	// match the dimension established by the collection's first write.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrLengthMismatch    = errors.New("chunks and vectors length mismatch")
)

// Store is a set of named, durable vector collections. Searching an
// unknown collection yields empty results, not an error; Delete reports
// absence via its bool.
type Store interface {
	Upsert(ctx context.Context, collection string, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, collection string, query []float32, topK int) ([]models.ScoredChunk, error)
	Delete(ctx context.Context, collection string) (bool, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}

// Open builds the store backend selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", "sqlite":
		return OpenSQLite(cfg.DataDir)
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.StoreDriver)
	}
}

func validateUpsert(chunks []models.Chunk, vectors [][]float32, dim int) error {
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: collection has %d, got %d", ErrDimensionMismatch, dim, len(v))
		}
	}
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func vectorToBlob(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(x))
	}
	return b
}

func blobToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// ToLiteral renders a vector as a pgvector literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, fmt.Sprintf("%f", x))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
