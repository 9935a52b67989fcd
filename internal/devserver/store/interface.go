package store

import (
	"context"

	"github.com/tasklane/chatkit/internal/domain"
)

// HistoryStore persists per-room message history for the history endpoint.
// A room nobody has written to yet is an empty history, not an error.
type HistoryStore interface {
	// Append records a delivered message at the end of the room's history.
	Append(ctx context.Context, roomID string, msg domain.HistoryMessage) error

	// List returns up to limit most recent messages in chronological
	// order. limit <= 0 means all retained messages.
	List(ctx context.Context, roomID string, limit int) ([]domain.HistoryMessage, error)

	Close() error
}
