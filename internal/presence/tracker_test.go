package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteTypingExpiresLazily(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	tr.now = func() time.Time { return now }

	tr.OnRemoteTyping("u-1", "ada")

	now = base.Add(2900 * time.Millisecond)
	require.Len(t, tr.Current(), 1, "still visible just before expiry")

	now = base.Add(3 * time.Second)
	assert.Empty(t, tr.Current(), "absent at expiry even though no timer fired")
}

func TestRepeatedTypingExtendsExpiry(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	tr.now = func() time.Time { return now }

	tr.OnRemoteTyping("u-1", "ada")
	now = base.Add(2 * time.Second)
	tr.OnRemoteTyping("u-1", "ada")

	now = base.Add(4 * time.Second)
	states := tr.Current()
	require.Len(t, states, 1, "refresh extended the deadline past the original expiry")
	assert.Equal(t, "ada", states[0].DisplayName)

	now = base.Add(5 * time.Second)
	assert.Empty(t, tr.Current())
}

func TestParticipantAppearsAtMostOnce(t *testing.T) {
	tr := NewTracker(3 * time.Second)

	tr.OnRemoteTyping("u-1", "ada")
	tr.OnRemoteTyping("u-1", "ada")
	tr.OnRemoteTyping("u-2", "bob")

	assert.Len(t, tr.Current(), 2)
}

func TestStoppedTypingRemovesImmediately(t *testing.T) {
	tr := NewTracker(3 * time.Second)

	tr.OnRemoteTyping("u-1", "ada")
	tr.OnRemoteStoppedTyping("u-1")

	assert.Empty(t, tr.Current())
}

func TestResetDropsAllEntries(t *testing.T) {
	tr := NewTracker(3 * time.Second)

	tr.OnRemoteTyping("u-1", "ada")
	tr.OnRemoteTyping("u-2", "bob")
	tr.Reset()

	assert.Empty(t, tr.Current())
}
