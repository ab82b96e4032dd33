package store

import (
	"context"
	"sort"
	"sync"

	"docchat/internal/models"
)

type memCollection struct {
	dim     int
	chunks  []models.Chunk
	vectors [][]float32
	index   map[string]int // chunk id -> position
}

// Memory is a brute-force cosine store. It backs tests and throwaway dev
// runs; everything is lost on process exit.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemory() *Memory {
	return &Memory{collections: map[string]*memCollection{}}
}

func (m *Memory) Upsert(ctx context.Context, collection string, chunks []models.Chunk, vectors [][]float32) error {
	_ = ctx
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return ErrLengthMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		c = &memCollection{dim: len(vectors[0]), index: map[string]int{}}
		m.collections[collection] = c
	}
	if err := validateUpsert(chunks, vectors, c.dim); err != nil {
		return err
	}
	for i, chunk := range chunks {
		if at, seen := c.index[chunk.ChunkID]; seen {
			c.chunks[at] = chunk
			c.vectors[at] = vectors[i]
			continue
		}
		c.index[chunk.ChunkID] = len(c.chunks)
		c.chunks = append(c.chunks, chunk)
		c.vectors = append(c.vectors, vectors[i])
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, collection string, query []float32, topK int) ([]models.ScoredChunk, error) {
	_ = ctx
	if topK <= 0 {
		topK = 4
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return []models.ScoredChunk{}, nil
	}
	scored := make([]models.ScoredChunk, 0, len(c.chunks))
	for i := range c.chunks {
		scored = append(scored, models.ScoredChunk{Chunk: c.chunks[i], Score: cosine(c.vectors[i], query)})
	}
	// stable sort keeps insertion order for equal scores
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func (m *Memory) Delete(ctx context.Context, collection string) (bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		return false, nil
	}
	delete(m.collections, collection)
	return true, nil
}

func (m *Memory) Count(ctx context.Context, collection string) (int, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	return len(c.chunks), nil
}

func (m *Memory) Close() error { return nil }
