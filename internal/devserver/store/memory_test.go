package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/chatkit/internal/domain"
)

func record(id, body string) domain.HistoryMessage {
	return domain.HistoryMessage{
		MessageID: id,
		AuthorID:  "u-1",
		RoomID:    "room-1",
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "room-1", record("m-1", "first")))
	require.NoError(t, s.Append(ctx, "room-1", record("m-2", "second")))
	require.NoError(t, s.Append(ctx, "room-2", record("m-3", "elsewhere")))

	msgs, err := s.List(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-1", msgs[0].MessageID)
	assert.Equal(t, "m-2", msgs[1].MessageID)

	other, err := s.List(ctx, "room-2", 50)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "m-3", other[0].MessageID)
}

func TestMemoryStoreListLimitReturnsNewest(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, "room-1", record(fmt.Sprintf("m-%d", i), "x")))
	}

	msgs, err := s.List(ctx, "room-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-4", msgs[0].MessageID)
	assert.Equal(t, "m-5", msgs[1].MessageID)
}

func TestMemoryStoreCapDropsOldest(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, "room-1", record(fmt.Sprintf("m-%d", i), "x")))
	}

	msgs, err := s.List(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m-3", msgs[0].MessageID)
	assert.Equal(t, "m-5", msgs[2].MessageID)
}

func TestMemoryStoreListSnapshotIsIndependent(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "room-1", record("m-1", "first")))
	msgs, err := s.List(ctx, "room-1", 50)
	require.NoError(t, err)

	msgs[0].Body = "mutated"
	again, err := s.List(ctx, "room-1", 50)
	require.NoError(t, err)
	assert.Equal(t, "first", again[0].Body)
}

func TestMemoryStoreEmptyRoom(t *testing.T) {
	s := NewMemoryStore(10)
	msgs, err := s.List(context.Background(), "nowhere", 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
