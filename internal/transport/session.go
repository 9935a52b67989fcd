// Package transport owns one realtime connection to the chat endpoint:
// the authentication handshake, the room join, the read/write pumps, and
// teardown. Retry policy deliberately lives with the caller; the session
// only exposes its last error and when it happened.
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/pkg/log"
)

// Status is the session state machine position.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusJoined
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusJoined:
		return "joined"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds websocket tuning for a session.
type Config struct {
	URL              string        `mapstructure:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.PingInterval <= 0 {
		out.PingInterval = 30 * time.Second
	}
	if out.PongWait <= 0 {
		out.PongWait = 60 * time.Second
	}
	if out.WriteWait <= 0 {
		out.WriteWait = 10 * time.Second
	}
	if out.MaxMessageSize <= 0 {
		out.MaxMessageSize = 1 << 20
	}
	return out
}

// Event is one inbound delivery. Concrete types: MessageEvent, TypingEvent,
// ErrorEvent.
type Event interface{ isEvent() }

// MessageEvent carries a server copy of a chat message. CorrelationID is
// non-empty only for the echo of a message this client sent.
type MessageEvent struct {
	CorrelationID string
	Message       domain.ChatMessage
}

// TypingEvent carries a remote participant's typing state change.
type TypingEvent struct {
	ParticipantID string
	Name          string
	Typing        bool
}

// ErrorEvent reports a transport or server-side failure. The session has
// already moved to StatusError when it is delivered.
type ErrorEvent struct {
	Reason string
}

func (MessageEvent) isEvent() {}
func (TypingEvent) isEvent()  {}
func (ErrorEvent) isEvent()   {}

type outFrame struct {
	data []byte
	ack  chan struct{}
}

// Session is one live connection joined to one room. It is single-use:
// after Close or a transport failure the caller opens a fresh session.
type Session struct {
	cfg    Config
	roomID string
	conn   *websocket.Conn
	logger zerolog.Logger

	events chan Event
	send   chan outFrame
	done   chan struct{}

	status   atomic.Int32
	stopOnce sync.Once

	errMu     sync.Mutex
	lastErr   error
	lastErrAt time.Time
}

// Open dials the endpoint, authenticates with the bearer token, joins the
// room, and starts the pumps. It returns domain.ErrAuthentication for a
// rejected credential and domain.ErrConnection for anything unreachable.
func Open(cfg Config, roomID, token string) (*Session, error) {
	cfg = cfg.withDefaults()

	s := &Session{
		cfg:    cfg,
		roomID: roomID,
		logger: log.L().With().Str("room_id", roomID).Logger(),
		events: make(chan Event, 256),
		send:   make(chan outFrame, 64),
		done:   make(chan struct{}),
	}
	s.status.Store(int32(StatusConnecting))

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(cfg.URL, nil)
	if err != nil {
		s.fail(fmt.Errorf("%w: dial %s: %v", domain.ErrConnection, cfg.URL, err))
		return nil, s.lastError()
	}
	s.conn = conn
	conn.SetReadLimit(cfg.MaxMessageSize)

	if err := s.handshake(token); err != nil {
		s.fail(err)
		conn.Close()
		return nil, err
	}

	s.status.Store(int32(StatusJoined))
	s.logger.Info().Msg("session joined")

	go s.writePump()
	go s.readPump()
	return s, nil
}

// handshake runs auth then join over the freshly dialed connection.
func (s *Session) handshake(token string) error {
	if err := s.writeJSON(&domain.AuthMessage{Type: domain.MsgTypeAuth, Token: token}); err != nil {
		return fmt.Errorf("%w: send auth: %v", domain.ErrConnection, err)
	}

	var auth domain.AuthResultMessage
	if err := s.awaitFrame(domain.MsgTypeAuthResult, &auth); err != nil {
		return err
	}
	if !auth.Success {
		return fmt.Errorf("%w: %s", domain.ErrAuthentication, auth.Message)
	}

	if err := s.writeJSON(&domain.JoinRoomMessage{Type: domain.MsgTypeJoinRoom, RoomID: s.roomID}); err != nil {
		return fmt.Errorf("%w: send join: %v", domain.ErrConnection, err)
	}

	var joined domain.RoomJoinedMessage
	return s.awaitFrame(domain.MsgTypeRoomJoined, &joined)
}

// awaitFrame reads until a frame of the wanted type arrives, failing on
// error frames and on anything unexpected.
func (s *Session) awaitFrame(want string, into interface{}) error {
	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	for {
		s.conn.SetReadDeadline(deadline)
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: awaiting %s: %v", domain.ErrConnection, want, err)
		}

		var base domain.BaseMessage
		if err := json.Unmarshal(raw, &base); err != nil {
			return fmt.Errorf("%w: malformed frame awaiting %s", domain.ErrConnection, want)
		}

		switch base.Type {
		case want:
			if err := json.Unmarshal(raw, into); err != nil {
				return fmt.Errorf("%w: malformed %s frame", domain.ErrConnection, want)
			}
			return nil
		case domain.MsgTypeError:
			var em domain.ErrorMessage
			if err := json.Unmarshal(raw, &em); err == nil && em.Code == domain.ErrCodeUnauthorized {
				return fmt.Errorf("%w: %s", domain.ErrAuthentication, em.Message)
			}
			return fmt.Errorf("%w: server rejected handshake", domain.ErrConnection)
		case domain.MsgTypePong:
			// unrelated keepalive, keep reading
		default:
			return fmt.Errorf("%w: unexpected %s frame awaiting %s", domain.ErrConnection, base.Type, want)
		}
	}
}

func (s *Session) writeJSON(v interface{}) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) readPump() {
	defer func() {
		s.teardown(StatusDisconnected)
		close(s.events)
	}()

	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// deliberate close, not a failure
			default:
				s.fail(fmt.Errorf("%w: read: %v", domain.ErrConnection, err))
				s.deliver(ErrorEvent{Reason: err.Error()})
			}
			return
		}
		s.dispatch(raw)
	}
}

func (s *Session) dispatch(raw []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	switch base.Type {
	case domain.MsgTypeMessageDelivered:
		var m domain.MessageDeliveredWS
		if err := json.Unmarshal(raw, &m); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed message_delivered")
			return
		}
		s.deliver(MessageEvent{
			CorrelationID: m.CorrelationID,
			Message: domain.ChatMessage{
				ID:          m.MessageID,
				AuthorID:    m.AuthorID,
				AuthorName:  m.AuthorName,
				Body:        m.Body,
				Attachments: m.Attachments,
				CreatedAt:   time.UnixMilli(m.Timestamp).UTC(),
				State:       domain.StateConfirmed,
			},
		})

	case domain.MsgTypeTypingState:
		var t domain.TypingStateWS
		if err := json.Unmarshal(raw, &t); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed typing_state")
			return
		}
		s.deliver(TypingEvent{
			ParticipantID: t.ParticipantID,
			Name:          t.Name,
			Typing:        t.State == domain.TypingStarted,
		})

	case domain.MsgTypeError:
		var em domain.ErrorMessage
		if err := json.Unmarshal(raw, &em); err != nil {
			return
		}
		s.logger.Warn().Str("code", em.Code).Str("message", em.Message).Msg("server error frame")
		s.deliver(ErrorEvent{Reason: em.Message})

	case domain.MsgTypePong:
		// keepalive, nothing to do

	default:
		s.logger.Debug().Str("type", base.Type).Msg("ignoring unknown frame type")
	}
}

func (s *Session) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			err := s.conn.WriteMessage(websocket.TextMessage, frame.data)
			if frame.ack != nil {
				close(frame.ack)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			s.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}

// Events is the inbound delivery channel. It is closed once the session is
// done, after a final ErrorEvent when the transport failed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Status returns the current state machine position.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Joined reports whether the session is currently joined to its room.
func (s *Session) Joined() bool {
	return s.Status() == StatusJoined
}

// RoomID returns the joined room.
func (s *Session) RoomID() string {
	return s.roomID
}

// SendMessage transmits a chat message with the given correlation id.
func (s *Session) SendMessage(correlationID, body string, attachments []domain.Attachment) error {
	return s.enqueueJSON(&domain.SendMessageWS{
		Type:          domain.MsgTypeSendMessage,
		CorrelationID: correlationID,
		RoomID:        s.roomID,
		Body:          body,
		Attachments:   attachments,
	})
}

// SendTyping transmits the local typing state, domain.TypingStarted or
// domain.TypingStopped.
func (s *Session) SendTyping(state string) error {
	return s.enqueueJSON(&domain.TypingStateWS{
		Type:   domain.MsgTypeTypingState,
		RoomID: s.roomID,
		State:  state,
	})
}

func (s *Session) enqueueJSON(v interface{}) error {
	if !s.Joined() {
		return domain.ErrNotJoined
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.send <- outFrame{data: data}:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// Close leaves the room with a bounded wait for the frame to flush, then
// tears the connection down. Idempotent; always succeeds.
func (s *Session) Close() error {
	if s.Joined() {
		data, err := json.Marshal(&domain.LeaveRoomMessage{
			Type:   domain.MsgTypeLeaveRoom,
			RoomID: s.roomID,
		})
		if err == nil {
			ack := make(chan struct{})
			select {
			case s.send <- outFrame{data: data, ack: ack}:
				select {
				case <-ack:
				case <-time.After(s.cfg.WriteWait):
				}
			case <-time.After(s.cfg.WriteWait):
			}
		}
	}

	s.teardown(StatusDisconnected)
	return nil
}

// teardown stops the pumps and closes the connection exactly once. The
// final status sticks at StatusError when a failure was already recorded.
func (s *Session) teardown(final Status) {
	s.stopOnce.Do(func() {
		if s.Status() != StatusError {
			s.status.Store(int32(final))
		}
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
		s.logger.Debug().Str("status", s.Status().String()).Msg("session torn down")
	})
}

func (s *Session) fail(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.errMu.Unlock()
	s.status.Store(int32(StatusError))
	s.logger.Error().Err(err).Msg("transport failure")
}

func (s *Session) lastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

// LastError returns the most recent transport failure and when it was
// recorded, for callers implementing their own retry policy.
func (s *Session) LastError() (error, time.Time) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr, s.lastErrAt
}
