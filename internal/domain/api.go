package domain

import "time"

// HistoryMessage is one record of the history endpoint response.
type HistoryMessage struct {
	MessageID   string       `json:"message_id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	RoomID      string       `json:"room_id"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// HistoryPage is the payload of a history endpoint response.
type HistoryPage struct {
	Messages []HistoryMessage `json:"messages"`
}

// APIResponse is the HTTP envelope used by the history endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
