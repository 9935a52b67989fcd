package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/tasklane/chatkit/internal/devserver/hub"
	"github.com/tasklane/chatkit/internal/devserver/store"
	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/pkg/jwt"
	"github.com/tasklane/chatkit/pkg/log"
)

type chatService struct {
	hub     *hub.Hub
	tokens  *jwt.Manager
	history store.HistoryStore
}

func NewChatService(h *hub.Hub, tokens *jwt.Manager, history store.HistoryStore) ChatService {
	return &chatService{
		hub:     h,
		tokens:  tokens,
		history: history,
	}
}

func (s *chatService) HandleAuth(_ context.Context, c *hub.Client, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "invalid or expired token",
		})
		return fmt.Errorf("token rejected: %w", err)
	}

	c.State.Authenticate(claims.UserID, claims.Username)

	return c.SendMessage(&domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, roomID string) error {
	if !c.State.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "not authenticated"))
	}
	if roomID == "" {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "room_id is required"))
	}

	// Leave current room if any
	if c.State.InRoom() {
		s.leaveInternal(ctx, c)
	}

	s.hub.JoinRoom(c, roomID)
	c.State.JoinRoom(roomID)

	return c.SendMessage(&domain.RoomJoinedMessage{
		Type:   domain.MsgTypeRoomJoined,
		RoomID: roomID,
	})
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageWS) error {
	if !c.State.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeUnauthorized, "not authenticated"))
	}
	if !c.State.InRoom() {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, "not in a room"))
	}
	if strings.TrimSpace(msg.Body) == "" && len(msg.Attachments) == 0 {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeEmptyMessage, "message has no content"))
	}

	roomID := c.State.CurrentRoom()
	userID, username := c.State.Identity()

	delivered := &domain.MessageDeliveredWS{
		Type:        domain.MsgTypeMessageDelivered,
		MessageID:   ksuid.New().String(),
		AuthorID:    userID,
		AuthorName:  username,
		RoomID:      roomID,
		Body:        msg.Body,
		Attachments: msg.Attachments,
		Timestamp:   time.Now().UTC().UnixMilli(),
	}

	if err := s.history.Append(ctx, roomID, domain.HistoryMessage{
		MessageID:   delivered.MessageID,
		AuthorID:    delivered.AuthorID,
		AuthorName:  delivered.AuthorName,
		RoomID:      roomID,
		Body:        delivered.Body,
		Attachments: delivered.Attachments,
		CreatedAt:   time.UnixMilli(delivered.Timestamp).UTC(),
	}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to persist message")
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "failed to store message"))
	}

	// Other members get the plain copy; the author's echo carries the
	// correlation id so the optimistic entry can be reconciled.
	if err := s.hub.BroadcastToRoom(roomID, delivered, c.ID); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("broadcast failed")
	}

	echo := *delivered
	echo.CorrelationID = msg.CorrelationID
	return c.SendMessage(&echo)
}

func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, state string) error {
	if !c.State.IsAuthenticated() || !c.State.InRoom() {
		return nil
	}
	if state != domain.TypingStarted && state != domain.TypingStopped {
		return c.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown typing state"))
	}

	roomID := c.State.CurrentRoom()
	userID, username := c.State.Identity()

	return s.hub.BroadcastToRoom(roomID, &domain.TypingStateWS{
		Type:          domain.MsgTypeTypingState,
		RoomID:        roomID,
		ParticipantID: userID,
		Name:          username,
		State:         state,
	}, c.ID)
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client) error {
	if !c.State.InRoom() {
		return nil
	}
	return s.leaveInternal(ctx, c)
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if !c.State.InRoom() {
		return nil
	}
	return s.leaveInternal(ctx, c)
}

func (s *chatService) leaveInternal(ctx context.Context, c *hub.Client) error {
	roomID := c.State.CurrentRoom()
	if roomID == "" {
		return nil
	}

	// A member who leaves stops typing as far as the room is concerned.
	userID, username := c.State.Identity()
	s.hub.BroadcastToRoom(roomID, &domain.TypingStateWS{
		Type:          domain.MsgTypeTypingState,
		RoomID:        roomID,
		ParticipantID: userID,
		Name:          username,
		State:         domain.TypingStopped,
	}, c.ID)

	s.hub.LeaveRoom(c, roomID)
	c.State.LeaveRoom()
	return nil
}
