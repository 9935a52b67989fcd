package presence

import (
	"sync"
	"time"

	"github.com/tasklane/chatkit/internal/domain"
)

// DefaultDebounce is the inactivity window after the last keystroke before
// a trailing "stopped" signal is emitted.
const DefaultDebounce = 1200 * time.Millisecond

// Notifier debounces outbound typing signals. The first keystroke after
// idle emits exactly one "typing" signal; each further keystroke only
// resets the inactivity timer; one "stopped" signal follows once the
// window elapses with no input. A flood of keystrokes never becomes a
// flood of events.
type Notifier struct {
	mu     sync.Mutex
	window time.Duration
	emit   func(state string)
	timer  *time.Timer
	active bool
	closed bool
}

// NewNotifier builds a notifier that calls emit with domain.TypingStarted
// or domain.TypingStopped. emit runs on the timer goroutine for the
// trailing signal and must not block.
func NewNotifier(window time.Duration, emit func(state string)) *Notifier {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Notifier{window: window, emit: emit}
}

// Keystroke records local input activity. Call it on every input change.
func (n *Notifier) Keystroke() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}

	leading := !n.active
	n.active = true
	if n.timer == nil {
		n.timer = time.AfterFunc(n.window, n.fire)
	} else {
		n.timer.Reset(n.window)
	}
	n.mu.Unlock()

	if leading {
		n.emit(domain.TypingStarted)
	}
}

func (n *Notifier) fire() {
	n.mu.Lock()
	if n.closed || !n.active {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.mu.Unlock()

	n.emit(domain.TypingStopped)
}

// Close cancels the pending timer without emitting. Safe to call more than
// once; the notifier accepts no keystrokes afterwards.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.active = false
	if n.timer != nil {
		n.timer.Stop()
	}
}
