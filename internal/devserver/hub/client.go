package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tasklane/chatkit/pkg/log"
)

// ClientState is the authenticated identity and room membership of one
// connection.
type ClientState struct {
	UserID        string
	Username      string
	Authenticated bool
	RoomID        string
	mu            sync.RWMutex
}

func (s *ClientState) Authenticate(userID, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = userID
	s.Username = username
	s.Authenticated = true
}

func (s *ClientState) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Authenticated
}

func (s *ClientState) JoinRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoomID = roomID
}

func (s *ClientState) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RoomID = ""
}

func (s *ClientState) CurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RoomID
}

func (s *ClientState) InRoom() bool {
	return s.CurrentRoom() != ""
}

func (s *ClientState) Identity() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.UserID, s.Username
}

type Client struct {
	ID    string
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []byte
	State *ClientState
	cfg   Config
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, cfg Config) *Client {
	return &Client{
		ID:    id,
		Hub:   hub,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		State: &ClientState{},
		cfg:   cfg,
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
	default:
	}
	return nil
}
