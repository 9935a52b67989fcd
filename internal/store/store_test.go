package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/chatkit/internal/domain"
)

func serverCopy(id, body string) domain.ChatMessage {
	return domain.ChatMessage{
		ID:         id,
		AuthorID:   "u-1",
		AuthorName: "ada",
		Body:       body,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		State:      domain.StateConfirmed,
	}
}

func TestAppendLocalThenReconcileKeepsPosition(t *testing.T) {
	s := New()

	s.IngestRemote(serverCopy("srv-0", "earlier"))
	corrID := s.AppendLocal(Draft{AuthorID: "u-9", AuthorName: "bob", Body: "hello"})
	s.IngestRemote(serverCopy("srv-2", "later"))

	entries := s.List()
	require.Len(t, entries, 3)
	assert.Equal(t, domain.StatePending, entries[1].State)
	assert.Equal(t, "hello", entries[1].Body)

	s.Reconcile(corrID, serverCopy("srv-1", "hello"))

	entries = s.List()
	require.Len(t, entries, 3, "reconcile must not append")
	assert.Equal(t, "srv-1", entries[1].ID)
	assert.Equal(t, domain.StateConfirmed, entries[1].State)
	assert.Equal(t, corrID, entries[1].CorrelationID)
	assert.Empty(t, s.Unconfirmed())
}

func TestReconcileUnknownCorrelationFallsThroughToIngest(t *testing.T) {
	s := New()

	// Duplicate echo after the caller already dropped tracking.
	s.Reconcile("gone", serverCopy("srv-7", "late echo"))

	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "srv-7", entries[0].ID)

	// The same echo again is absorbed by id dedupe.
	s.Reconcile("gone", serverCopy("srv-7", "late echo"))
	assert.Equal(t, 1, s.Len())
}

func TestIngestRemoteIsIdempotent(t *testing.T) {
	s := New()

	s.IngestRemote(serverCopy("srv-1", "once"))
	s.IngestRemote(serverCopy("srv-1", "once"))
	s.IngestRemote(serverCopy("srv-2", "twice"))

	entries := s.List()
	require.Len(t, entries, 2)
	assert.Equal(t, "srv-1", entries[0].ID)
	assert.Equal(t, "srv-2", entries[1].ID)
}

func TestMarkFailed(t *testing.T) {
	s := New()

	corrID := s.AppendLocal(Draft{AuthorID: "u-1", Body: "doomed"})
	require.Len(t, s.Unconfirmed(), 1)

	assert.True(t, s.MarkFailed(corrID))
	assert.False(t, s.MarkFailed(corrID), "second mark is a no-op")
	assert.Empty(t, s.Unconfirmed())

	entries := s.List()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.StateFailed, entries[0].State)

	// A very late echo no longer reconciles in place; it lands as a new
	// confirmed entry.
	s.Reconcile(corrID, serverCopy("srv-9", "doomed"))
	assert.Equal(t, 2, s.Len())
}

func TestUnconfirmedExposesCreationTimestamps(t *testing.T) {
	s := New()
	created := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return created }

	s.AppendLocal(Draft{AuthorID: "u-1", Body: "pending"})

	pending := s.Unconfirmed()
	require.Len(t, pending, 1)
	assert.Equal(t, created, pending[0].CreatedAt)
}

func TestListReturnsSnapshot(t *testing.T) {
	s := New()
	s.IngestRemote(serverCopy("srv-1", "original"))

	snapshot := s.List()
	snapshot[0].Body = "mutated"

	assert.Equal(t, "original", s.List()[0].Body)
}
