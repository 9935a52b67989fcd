package domain

import "time"

// DeliveryState tracks where a chat message sits in the optimistic-send
// lifecycle. A message is Pending from local append until the server echo
// reconciles it, Confirmed once the server copy replaced it (or when it
// arrived as a genuinely remote message), and Failed only when the caller
// explicitly gave up on it.
type DeliveryState int

const (
	StatePending DeliveryState = iota
	StateConfirmed
	StateFailed
)

func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Attachment is an image payload already encoded for transport.
type Attachment struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}

// ChatMessage is one entry in a room's ordered log.
//
// ID is server-assigned and empty while the message is Pending.
// CorrelationID is client-generated and attached to every outbound message;
// it only exists to match the server echo with the optimistic copy.
type ChatMessage struct {
	ID            string
	CorrelationID string
	AuthorID      string
	AuthorName    string
	Body          string
	Attachments   []Attachment
	CreatedAt     time.Time
	State         DeliveryState
}

// Confirmed reports whether the message carries a server identity.
func (m ChatMessage) Confirmed() bool {
	return m.State == StateConfirmed
}

// TypingState is one remote participant currently typing in the room.
// Entries are treated as absent once ExpiresAt has elapsed even if no
// timer removed them yet.
type TypingState struct {
	ParticipantID string
	DisplayName   string
	ExpiresAt     time.Time
}

// Identity is the local author used for optimistic entries.
type Identity struct {
	UserID   string
	Username string
}
