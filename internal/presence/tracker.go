// Package presence tracks ephemeral typing state: who is typing in the
// room right now, and when to tell the server the local user started or
// stopped typing.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/tasklane/chatkit/internal/domain"
)

// DefaultExpiry is how long a remote typing signal stays visible without
// being refreshed.
const DefaultExpiry = 3 * time.Second

// Tracker holds the per-room set of remote participants currently typing.
// Expiry is lazy: entries past their deadline are filtered on read and
// pruned opportunistically, so no timer has to fire for correctness.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]domain.TypingState
	expiry  time.Duration
	now     func() time.Time
}

func NewTracker(expiry time.Duration) *Tracker {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Tracker{
		entries: make(map[string]domain.TypingState),
		expiry:  expiry,
		now:     time.Now,
	}
}

// OnRemoteTyping sets or refreshes the participant's entry. Repeated calls
// extend the deadline; a participant never appears twice.
func (t *Tracker) OnRemoteTyping(participantID, displayName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[participantID] = domain.TypingState{
		ParticipantID: participantID,
		DisplayName:   displayName,
		ExpiresAt:     t.now().Add(t.expiry),
	}
}

// OnRemoteStoppedTyping removes the participant immediately.
func (t *Tracker) OnRemoteStoppedTyping(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, participantID)
}

// Current returns the non-expired entries, sorted by participant id for a
// stable presentation order.
func (t *Tracker) Current() []domain.TypingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]domain.TypingState, 0, len(t.entries))
	for id, e := range t.entries {
		if !now.Before(e.ExpiresAt) {
			delete(t.entries, id)
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out
}

// Reset drops all entries. Called when the owning session closes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]domain.TypingState)
}
