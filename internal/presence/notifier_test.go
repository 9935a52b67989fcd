package presence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/chatkit/internal/domain"
)

type emitRecorder struct {
	mu     sync.Mutex
	states []string
}

func (r *emitRecorder) emit(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *emitRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.states))
	copy(out, r.states)
	return out
}

func TestRapidKeystrokesEmitOneTypingAndOneStopped(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(60*time.Millisecond, rec.emit)
	defer n.Close()

	for i := 0; i < 10; i++ {
		n.Keystroke()
		time.Sleep(10 * time.Millisecond)
	}

	// Inactivity shorter than the window: still only the leading signal.
	assert.Equal(t, []string{domain.TypingStarted}, rec.snapshot())

	require.Eventually(t, func() bool {
		s := rec.snapshot()
		return len(s) == 2 && s[1] == domain.TypingStopped
	}, time.Second, 5*time.Millisecond, "exactly one trailing stopped signal")

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 2, "no extra signals after the window")
}

func TestKeystrokeAfterIdleEmitsLeadingAgain(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(30*time.Millisecond, rec.emit)
	defer n.Close()

	n.Keystroke()
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 2*time.Millisecond)

	n.Keystroke()
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 2*time.Millisecond)

	assert.Equal(t, []string{
		domain.TypingStarted, domain.TypingStopped,
		domain.TypingStarted, domain.TypingStopped,
	}, rec.snapshot())
}

func TestCloseCancelsPendingSignal(t *testing.T) {
	rec := &emitRecorder{}
	n := NewNotifier(30*time.Millisecond, rec.emit)

	n.Keystroke()
	n.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []string{domain.TypingStarted}, rec.snapshot(), "no stopped signal after close")

	n.Keystroke()
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "closed notifier accepts no keystrokes")
}
