package service

import (
	"context"

	"github.com/tasklane/chatkit/internal/devserver/hub"
	"github.com/tasklane/chatkit/internal/domain"
)

// ChatService handles the websocket protocol on the server side.
type ChatService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandleJoinRoom(ctx context.Context, c *hub.Client, roomID string) error
	HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageWS) error
	HandleTyping(ctx context.Context, c *hub.Client, state string) error
	HandleLeaveRoom(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
}
