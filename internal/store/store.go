// Package store holds the ordered, deduplicated log of chat messages for
// one room. It is owned by a single session and discarded with it; a room
// change builds a fresh store rather than migrating entries.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tasklane/chatkit/internal/domain"
)

// Draft is the locally-authored input to AppendLocal.
type Draft struct {
	AuthorID    string
	AuthorName  string
	Body        string
	Attachments []domain.Attachment
}

// Store keeps messages in insertion order. Optimistic entries occupy their
// original slot until reconciled or marked failed; reconciliation replaces
// the entry in place, never appends.
type Store struct {
	mu      sync.RWMutex
	entries []domain.ChatMessage
	pending map[string]int      // correlation id -> slot of the pending entry
	seen    map[string]struct{} // server ids already in the log
	now     func() time.Time
}

func New() *Store {
	return &Store{
		pending: make(map[string]int),
		seen:    make(map[string]struct{}),
		now:     time.Now,
	}
}

// AppendLocal inserts an unconfirmed message at the end of the log and
// returns the correlation id to attach to the outbound copy. At most one
// pending entry exists per correlation id.
func (s *Store) AppendLocal(d Draft) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	corrID := uuid.New().String()
	s.entries = append(s.entries, domain.ChatMessage{
		CorrelationID: corrID,
		AuthorID:      d.AuthorID,
		AuthorName:    d.AuthorName,
		Body:          d.Body,
		Attachments:   d.Attachments,
		CreatedAt:     s.now(),
		State:         domain.StatePending,
	})
	s.pending[corrID] = len(s.entries) - 1
	return corrID
}

// Reconcile replaces the pending entry for corrID in place with the server
// copy. If no pending entry exists (duplicate echo after the caller already
// dropped tracking, or an echo for another client's message) the server copy
// is ingested as a remote message instead.
func (s *Store) Reconcile(corrID string, msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.pending[corrID]
	if !ok {
		s.ingestLocked(msg)
		return
	}

	msg.CorrelationID = corrID
	msg.State = domain.StateConfirmed
	s.entries[idx] = msg
	delete(s.pending, corrID)
	if msg.ID != "" {
		s.seen[msg.ID] = struct{}{}
	}
}

// IngestRemote appends a server message to the end of the log. Re-delivery
// of an id already present (reconnect replays) is a no-op.
func (s *Store) IngestRemote(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingestLocked(msg)
}

func (s *Store) ingestLocked(msg domain.ChatMessage) {
	if msg.ID != "" {
		if _, dup := s.seen[msg.ID]; dup {
			return
		}
		s.seen[msg.ID] = struct{}{}
	}
	msg.State = domain.StateConfirmed
	s.entries = append(s.entries, msg)
}

// MarkFailed flips the pending entry for corrID to failed and stops tracking
// it. Returns false when no such pending entry exists. The store imposes no
// timeout of its own; callers decide when to give up.
func (s *Store) MarkFailed(corrID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.pending[corrID]
	if !ok {
		return false
	}
	s.entries[idx].State = domain.StateFailed
	delete(s.pending, corrID)
	return true
}

// List returns a snapshot of the log in insertion order.
func (s *Store) List() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatMessage, len(s.entries))
	copy(out, s.entries)
	return out
}

// Unconfirmed returns the pending entries, each carrying its creation
// timestamp so callers can implement their own timeout policy.
func (s *Store) Unconfirmed() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChatMessage, 0, len(s.pending))
	for _, idx := range s.pending {
		out = append(out, s.entries[idx])
	}
	return out
}

// Len returns the number of entries in the log.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
