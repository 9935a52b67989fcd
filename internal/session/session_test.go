package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// testServer bundles a scripted websocket endpoint and a history endpoint
// behind one mux, the way the client sees a real deployment.
func testServer(t *testing.T, history http.HandlerFunc, script func(*websocket.Conn)) Config {
	t.Helper()

	mux := http.NewServeMux()
	if history != nil {
		mux.HandleFunc("GET /api/v1/rooms/{room_id}/messages", history)
	}
	mux.HandleFunc("/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return Config{
		Transport: transport.Config{
			URL:              "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws",
			HandshakeTimeout: 2 * time.Second,
			PingInterval:     50 * time.Millisecond,
			PongWait:         2 * time.Second,
			WriteWait:        time.Second,
		},
		HistoryURL:     srv.URL,
		HistoryTimeout: 2 * time.Second,
		Identity:       domain.Identity{UserID: "u-1", Username: "ada"},
		TypingExpiry:   3 * time.Second,
		TypingDebounce: 40 * time.Millisecond,
	}
}

func acceptHandshake(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	var auth domain.AuthMessage
	require.NoError(t, conn.ReadJSON(&auth))
	require.NoError(t, conn.WriteJSON(&domain.AuthResultMessage{
		Type: domain.MsgTypeAuthResult, Success: true, UserID: "u-1", Username: "ada",
	}))

	var join domain.JoinRoomMessage
	require.NoError(t, conn.ReadJSON(&join))
	require.NoError(t, conn.WriteJSON(&domain.RoomJoinedMessage{
		Type: domain.MsgTypeRoomJoined, RoomID: join.RoomID,
	}))
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func historyPage(msgs ...domain.HistoryMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.APIResponse{
			Success: true,
			Data:    domain.HistoryPage{Messages: msgs},
		})
	}
}

func bodies(msgs []domain.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestHistoryPrecedesLiveEvents(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	slowHistory := func(w http.ResponseWriter, r *http.Request) {
		// The live event for m3 races this fetch and must still sort last.
		time.Sleep(150 * time.Millisecond)
		historyPage(
			domain.HistoryMessage{MessageID: "srv-1", AuthorName: "bob", Body: "m1", CreatedAt: created},
			domain.HistoryMessage{MessageID: "srv-2", AuthorName: "bob", Body: "m2", CreatedAt: created.Add(time.Minute)},
		)(w, r)
	}

	cfg := testServer(t, slowHistory, func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		conn.WriteJSON(&domain.MessageDeliveredWS{
			Type: domain.MsgTypeMessageDelivered, MessageID: "srv-3",
			AuthorID: "u-2", AuthorName: "bob", RoomID: "room-1", Body: "m3",
			Timestamp: time.Now().UnixMilli(),
		})
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 3
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"m1", "m2", "m3"}, bodies(s.Messages()))
	assert.NoError(t, s.HistoryError())
}

func TestOptimisticSendReconcilesInPlace(t *testing.T) {
	echoAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		for {
			var msg domain.SendMessageWS
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != domain.MsgTypeSendMessage {
				continue
			}
			conn.WriteJSON(&domain.MessageDeliveredWS{
				Type: domain.MsgTypeMessageDelivered, CorrelationID: msg.CorrelationID,
				MessageID: "srv-1", AuthorID: "u-1", AuthorName: "ada",
				RoomID: msg.RoomID, Body: msg.Body, Timestamp: echoAt.UnixMilli(),
			})
		}
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	corrID, err := s.Send(context.Background(), "hello", nil)
	require.NoError(t, err)

	// Optimistic entry is visible synchronously.
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatePending, msgs[0].State)
	assert.Equal(t, "hello", msgs[0].Body)

	require.Eventually(t, func() bool {
		m := s.Messages()
		return len(m) == 1 && m[0].State == domain.StateConfirmed
	}, 3*time.Second, 10*time.Millisecond, "echo reconciles without duplicating")

	final := s.Messages()[0]
	assert.Equal(t, "srv-1", final.ID)
	assert.Equal(t, corrID, final.CorrelationID)
	assert.Equal(t, "hello", final.Body)
	assert.Equal(t, echoAt, final.CreatedAt)
	assert.Empty(t, s.Unconfirmed())
}

func TestRemoteTypingTracked(t *testing.T) {
	send := make(chan domain.TypingStateWS, 2)
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		for st := range send {
			if err := conn.WriteJSON(&st); err != nil {
				return
			}
		}
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	send <- domain.TypingStateWS{
		Type: domain.MsgTypeTypingState, RoomID: "room-1",
		ParticipantID: "u-2", Name: "bob", State: domain.TypingStarted,
	}

	require.Eventually(t, func() bool {
		states := s.Typing()
		return len(states) == 1 && states[0].DisplayName == "bob"
	}, 2*time.Second, 10*time.Millisecond)

	send <- domain.TypingStateWS{
		Type: domain.MsgTypeTypingState, RoomID: "room-1",
		ParticipantID: "u-2", Name: "bob", State: domain.TypingStopped,
	}
	close(send)

	require.Eventually(t, func() bool {
		return len(s.Typing()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLocalTypingDebouncedOverWire(t *testing.T) {
	signals := make(chan string, 8)
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		for {
			var st domain.TypingStateWS
			if err := conn.ReadJSON(&st); err != nil {
				return
			}
			if st.Type == domain.MsgTypeTypingState {
				signals <- st.State
			}
		}
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		s.NotifyLocalTyping()
		time.Sleep(5 * time.Millisecond)
	}

	assert.Equal(t, domain.TypingStarted, <-signals)
	select {
	case st := <-signals:
		assert.Equal(t, domain.TypingStopped, st)
	case <-time.After(2 * time.Second):
		t.Fatal("trailing stopped signal never arrived")
	}

	select {
	case st := <-signals:
		t.Fatalf("unexpected extra signal %q", st)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestStaleDeliveryAfterCloseIsDiscarded(t *testing.T) {
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)

	corrID, err := s.Send(context.Background(), "pending forever", nil)
	require.NoError(t, err)
	require.Len(t, s.Unconfirmed(), 1)

	require.NoError(t, s.Close())

	// A slow reconnect delivering the old echo must not touch the
	// discarded store.
	s.apply(transport.MessageEvent{
		CorrelationID: corrID,
		Message: domain.ChatMessage{
			ID: "srv-9", Body: "pending forever", State: domain.StateConfirmed,
		},
	})

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatePending, msgs[0].State, "store untouched after close")
	assert.Empty(t, s.Typing())
}

func TestHistoryFailureLeavesLogEmptyButLiveWorks(t *testing.T) {
	failing := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}

	cfg := testServer(t, failing, func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		conn.WriteJSON(&domain.MessageDeliveredWS{
			Type: domain.MsgTypeMessageDelivered, MessageID: "srv-1",
			AuthorID: "u-2", AuthorName: "bob", RoomID: "room-1", Body: "still alive",
			Timestamp: time.Now().UnixMilli(),
		})
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, 3*time.Second, 10*time.Millisecond)

	assert.Error(t, s.HistoryError())
	assert.Equal(t, "still alive", s.Messages()[0].Body)
}

func TestReconnectReconcilesPendingAcrossDrop(t *testing.T) {
	var conns atomic.Int32
	inFlight := make(chan domain.SendMessageWS, 1)

	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		switch conns.Add(1) {
		case 1:
			acceptHandshake(t, conn)
			var msg domain.SendMessageWS
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			inFlight <- msg
			conn.Close() // drop after receipt, before the echo
		default:
			acceptHandshake(t, conn)
			msg := <-inFlight
			conn.WriteJSON(&domain.MessageDeliveredWS{
				Type: domain.MsgTypeMessageDelivered, CorrelationID: msg.CorrelationID,
				MessageID: "srv-1", AuthorID: "u-1", AuthorName: "ada",
				RoomID: msg.RoomID, Body: msg.Body, Timestamp: time.Now().UnixMilli(),
			})
			holdOpen(conn)
		}
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	defer s.Close()

	corrID, err := s.Send(context.Background(), "hold on", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Status() == transport.StatusError
	}, 3*time.Second, 10*time.Millisecond, "server drop surfaces as an error state")

	// The visible log and the pending entry survive the failure.
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.StatePending, msgs[0].State)
	require.Len(t, s.Unconfirmed(), 1)

	require.NoError(t, s.Reconnect("tok-1"))
	assert.Equal(t, transport.StatusJoined, s.Status())

	require.Eventually(t, func() bool {
		m := s.Messages()
		return len(m) == 1 && m[0].State == domain.StateConfirmed
	}, 3*time.Second, 10*time.Millisecond, "late echo reconciles the surviving entry")

	final := s.Messages()[0]
	assert.Equal(t, "srv-1", final.ID)
	assert.Equal(t, corrID, final.CorrelationID)
	assert.Equal(t, "hold on", final.Body)
	assert.Empty(t, s.Unconfirmed())
}

func TestReconnectAfterCloseFails(t *testing.T) {
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Reconnect("tok-1"), domain.ErrSessionClosed)
}

func TestSendAfterCloseFailsFast(t *testing.T) {
	cfg := testServer(t, historyPage(), func(conn *websocket.Conn) {
		acceptHandshake(t, conn)
		holdOpen(conn)
	})

	s, err := Open(cfg, "room-1", "tok-1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Send(context.Background(), "too late", nil)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}
