package domain

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeJoinRoom    = "join_room"
	MsgTypeLeaveRoom   = "leave_room"
	MsgTypeSendMessage = "send_message"
	MsgTypeTypingState = "typing_state"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAuthResult       = "auth_result"
	MsgTypeRoomJoined       = "room_joined"
	MsgTypeMessageDelivered = "message_delivered"
	MsgTypeError            = "error"
	MsgTypePong             = "pong"
)

// Typing states carried by typing_state in both directions.
const (
	TypingStarted = "typing"
	TypingStopped = "stopped"
)

// Error codes
const (
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodeEmptyMessage  = "EMPTY_MESSAGE"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type AuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type JoinRoomMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type LeaveRoomMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type SendMessageWS struct {
	Type          string       `json:"type"`
	CorrelationID string       `json:"correlation_id"`
	RoomID        string       `json:"room_id"`
	Body          string       `json:"body"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// TypingStateWS flows both ways: outbound it carries only the room and the
// state, inbound the server fills in the participant identity.
type TypingStateWS struct {
	Type          string `json:"type"`
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id,omitempty"`
	Name          string `json:"name,omitempty"`
	State         string `json:"state"`
}

// Server -> Client messages

type AuthResultMessage struct {
	Type     string `json:"type"`
	Success  bool   `json:"success"`
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message,omitempty"`
}

type RoomJoinedMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// MessageDeliveredWS is the server copy of a chat message. CorrelationID is
// present only on the echo sent back for a message this client authored.
type MessageDeliveredWS struct {
	Type          string       `json:"type"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	MessageID     string       `json:"message_id"`
	AuthorID      string       `json:"author_id"`
	AuthorName    string       `json:"author_name"`
	RoomID        string       `json:"room_id"`
	Body          string       `json:"body"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Timestamp     int64        `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
