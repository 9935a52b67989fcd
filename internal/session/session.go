// Package session wires the chat core together for one room visit: it
// owns the message store and typing tracker, seeds history before live
// events, and tears everything down as a unit when the room is left.
package session

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasklane/chatkit/internal/composer"
	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/internal/history"
	"github.com/tasklane/chatkit/internal/presence"
	"github.com/tasklane/chatkit/internal/store"
	"github.com/tasklane/chatkit/internal/transport"
	"github.com/tasklane/chatkit/pkg/log"
)

// Config assembles the per-session dependencies and tuning.
type Config struct {
	Transport      transport.Config
	Attachments    composer.Config
	HistoryURL     string
	HistoryTimeout time.Duration
	HTTPClient     *http.Client
	Identity       domain.Identity
	TypingExpiry   time.Duration
	TypingDebounce time.Duration

	// Optional UI hooks, invoked from the event loop after the state
	// change has been applied. They must not block.
	OnMessage func(domain.ChatMessage)
	OnTyping  func([]domain.TypingState)
	OnError   func(reason string)
}

// Session is one room visit. The store and tracker it owns live for the
// whole visit: a transport failure leaves them intact so Reconnect can
// resume with the visible log and the pending entries still in place.
// Only Close discards them; deliveries that straggle in afterwards never
// touch them.
type Session struct {
	cfg    Config
	roomID string
	logger zerolog.Logger

	store    *store.Store
	tracker  *presence.Tracker
	notifier *presence.Notifier
	composer *composer.Composer

	// mu guards the connection generation: the current transport, its
	// event-loop done channel, and the seed cancel. Reconnect swaps all
	// three as a unit.
	mu         sync.RWMutex
	transport  *transport.Session
	loopDone   chan struct{}
	cancelSeed context.CancelFunc

	closed     atomic.Bool
	histMu     sync.Mutex
	historyErr error
	closeOnce  sync.Once
}

// Open connects the transport, joins the room, and starts seeding the log
// from the history endpoint. Live events received while the fetch is in
// flight are held back until seeding finished, so history always precedes
// anything live.
func Open(cfg Config, roomID, token string) (*Session, error) {
	ts, err := transport.Open(cfg.Transport, roomID, token)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg,
		roomID:    roomID,
		logger:    log.L().With().Str(log.FieldRoomID, roomID).Logger(),
		store:     store.New(),
		tracker:   presence.NewTracker(cfg.TypingExpiry),
		transport: ts,
		loopDone:  make(chan struct{}),
	}
	s.notifier = presence.NewNotifier(cfg.TypingDebounce, s.emitTyping)
	s.composer = composer.New(s.store, s, cfg.Identity, cfg.Attachments)

	seedCtx, cancel := context.WithTimeout(context.Background(), s.historyTimeout())
	s.cancelSeed = cancel

	go s.run(seedCtx, cancel, history.NewLoader(cfg.HistoryURL, cfg.HTTPClient), token, ts, s.loopDone)
	return s, nil
}

func (s *Session) historyTimeout() time.Duration {
	if s.cfg.HistoryTimeout > 0 {
		return s.cfg.HistoryTimeout
	}
	return 15 * time.Second
}

// run seeds history, then drains the transport's events until its channel
// closes. Ordering falls out of the structure: live events queue on the
// transport channel while the fetch runs. Each connection generation gets
// its own run loop and done channel.
func (s *Session) run(seedCtx context.Context, cancelSeed context.CancelFunc, loader *history.Loader, token string, ts *transport.Session, done chan struct{}) {
	defer close(done)

	msgs, err := loader.Load(seedCtx, s.roomID, token)
	cancelSeed()
	if err != nil {
		// Room log keeps what it has; live messaging continues regardless.
		s.histMu.Lock()
		s.historyErr = err
		s.histMu.Unlock()
		s.logger.Warn().Err(err).Msg("history load failed")
	} else {
		for _, m := range msgs {
			if s.closed.Load() {
				return
			}
			s.store.IngestRemote(m)
		}
		s.logger.Debug().Int("count", len(msgs)).Msg("history seeded")
	}

	for ev := range ts.Events() {
		s.apply(ev)
	}
}

// apply folds one delivery into the session state. Deliveries after Close
// are discarded: the store and tracker belong to a room visit that no
// longer exists.
func (s *Session) apply(ev transport.Event) {
	if s.closed.Load() {
		return
	}

	switch e := ev.(type) {
	case transport.MessageEvent:
		if e.CorrelationID != "" {
			s.store.Reconcile(e.CorrelationID, e.Message)
		} else {
			s.store.IngestRemote(e.Message)
		}
		if cb := s.cfg.OnMessage; cb != nil {
			cb(e.Message)
		}

	case transport.TypingEvent:
		if e.ParticipantID == s.cfg.Identity.UserID {
			return
		}
		if e.Typing {
			s.tracker.OnRemoteTyping(e.ParticipantID, e.Name)
		} else {
			s.tracker.OnRemoteStoppedTyping(e.ParticipantID)
		}
		if cb := s.cfg.OnTyping; cb != nil {
			cb(s.tracker.Current())
		}

	case transport.ErrorEvent:
		if cb := s.cfg.OnError; cb != nil {
			cb(e.Reason)
		}
	}
}

func (s *Session) emitTyping(state string) {
	if s.closed.Load() {
		return
	}
	if err := s.currentTransport().SendTyping(state); err != nil {
		s.logger.Debug().Err(err).Msg("typing signal not sent")
	}
}

func (s *Session) currentTransport() *transport.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// Joined reports whether the current connection is joined to the room.
func (s *Session) Joined() bool {
	return s.currentTransport().Joined()
}

// SendMessage forwards to whichever connection is current, so a reconnect
// is transparent to the composer.
func (s *Session) SendMessage(correlationID, body string, attachments []domain.Attachment) error {
	return s.currentTransport().SendMessage(correlationID, body, attachments)
}

// Send publishes a locally-authored message: optimistic store entry first,
// then the wire transmit. Returns the correlation id of the entry.
func (s *Session) Send(ctx context.Context, text string, files []composer.File) (string, error) {
	if s.closed.Load() {
		return "", domain.ErrSessionClosed
	}
	return s.composer.Send(ctx, text, files)
}

// NotifyLocalTyping records local input activity; signals to the server
// are debounced by the notifier.
func (s *Session) NotifyLocalTyping() {
	if s.closed.Load() {
		return
	}
	s.notifier.Keystroke()
}

// Messages returns the room log snapshot in insertion order.
func (s *Session) Messages() []domain.ChatMessage {
	return s.store.List()
}

// Typing returns the remote participants currently typing.
func (s *Session) Typing() []domain.TypingState {
	return s.tracker.Current()
}

// Unconfirmed exposes the pending optimistic entries so the caller can
// apply its own timeout policy via MarkFailed.
func (s *Session) Unconfirmed() []domain.ChatMessage {
	return s.store.Unconfirmed()
}

// MarkFailed gives up on a pending message.
func (s *Session) MarkFailed(correlationID string) bool {
	return s.store.MarkFailed(correlationID)
}

// Status reports the transport state machine position.
func (s *Session) Status() transport.Status {
	return s.currentTransport().Status()
}

// LastError returns the most recent transport failure and its timestamp.
func (s *Session) LastError() (error, time.Time) {
	return s.currentTransport().LastError()
}

// HistoryError returns the seeding failure, if any.
func (s *Session) HistoryError() error {
	s.histMu.Lock()
	defer s.histMu.Unlock()
	return s.historyErr
}

// RoomID returns the room this session is scoped to.
func (s *Session) RoomID() string {
	return s.roomID
}

// Reconnect replaces a failed connection with a fresh handshake while
// keeping the room log and typing state. Pending optimistic entries stay
// tracked, so a server echo arriving on the new connection still
// reconciles them in place. History is reseeded; anything already in the
// log is deduplicated by server id.
func (s *Session) Reconnect(token string) error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}

	// Retire the old generation before dialing: its event loop must have
	// drained so no two loops ever feed the store at once.
	s.cancelSeed()
	s.transport.Close()
	<-s.loopDone

	ts, err := transport.Open(s.cfg.Transport, s.roomID, token)
	if err != nil {
		return err
	}

	s.histMu.Lock()
	s.historyErr = nil
	s.histMu.Unlock()

	seedCtx, cancel := context.WithTimeout(context.Background(), s.historyTimeout())
	s.transport = ts
	s.cancelSeed = cancel
	s.loopDone = make(chan struct{})

	go s.run(seedCtx, cancel, history.NewLoader(s.cfg.HistoryURL, s.cfg.HTTPClient), token, ts, s.loopDone)
	s.logger.Info().Msg("session reconnected")
	return nil
}

// Close leaves the room, cancels every pending timer and fetch, and waits
// for the event loop to drain. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.notifier.Close()

		s.mu.RLock()
		cancel, ts, done := s.cancelSeed, s.transport, s.loopDone
		s.mu.RUnlock()

		cancel()
		ts.Close()
		<-done
		s.tracker.Reset()
		s.logger.Info().Msg("session closed")
	})
	return nil
}
