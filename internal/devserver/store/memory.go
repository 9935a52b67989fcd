package store

import (
	"context"
	"sync"

	"github.com/tasklane/chatkit/internal/domain"
)

// MemoryStore keeps history in process memory, capped per room. It is the
// default backend so the dev server runs without any daemon.
type MemoryStore struct {
	mu         sync.RWMutex
	rooms      map[string][]domain.HistoryMessage
	maxPerRoom int
}

func NewMemoryStore(maxPerRoom int) *MemoryStore {
	if maxPerRoom <= 0 {
		maxPerRoom = 500
	}
	return &MemoryStore{
		rooms:      make(map[string][]domain.HistoryMessage),
		maxPerRoom: maxPerRoom,
	}
}

func (s *MemoryStore) Append(_ context.Context, roomID string, msg domain.HistoryMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.rooms[roomID], msg)
	if len(msgs) > s.maxPerRoom {
		msgs = msgs[len(msgs)-s.maxPerRoom:]
	}
	s.rooms[roomID] = msgs
	return nil
}

func (s *MemoryStore) List(_ context.Context, roomID string, limit int) ([]domain.HistoryMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.rooms[roomID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.HistoryMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
