package session

import (
	"context"
	"sync"

	"docchat/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string][]models.Turn{}}
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turn)
	return nil
}
