// Package history fetches the prior messages of a room so the message
// store can be seeded before live events start flowing.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/singleflight"

	"github.com/tasklane/chatkit/internal/domain"
)

var (
	// ErrUnauthorized means the bearer token was missing or rejected.
	ErrUnauthorized = errors.New("history: unauthorized")

	// ErrNotFound means the room has no history endpoint.
	ErrNotFound = errors.New("history: room not found")

	// ErrTransient covers network failures and server-side errors the
	// caller may retry.
	ErrTransient = errors.New("history: transient failure")
)

const maxErrorBody = 2048

// Loader performs the one-shot history fetch for a room entry. Concurrent
// loads for the same room collapse into a single request.
type Loader struct {
	baseURL string
	client  *http.Client
	sf      singleflight.Group
}

// NewLoader builds a loader against baseURL. A nil client falls back to
// http.DefaultClient.
func NewLoader(baseURL string, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{baseURL: baseURL, client: client}
}

// Load fetches the room's history in chronological order, mapped to
// confirmed chat messages ready for ingestion.
func (l *Loader) Load(ctx context.Context, roomID, token string) ([]domain.ChatMessage, error) {
	v, err, _ := l.sf.Do(roomID, func() (interface{}, error) {
		return l.fetch(ctx, roomID, token)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.ChatMessage), nil
}

func (l *Loader) fetch(ctx context.Context, roomID, token string) ([]domain.ChatMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/rooms/%s/messages", l.baseURL, url.PathEscape(roomID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("history: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, detail)
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, detail)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: status %d: %s", ErrTransient, resp.StatusCode, detail)
		default:
			return nil, fmt.Errorf("history: status %d: %s", resp.StatusCode, detail)
		}
	}

	var envelope struct {
		Success bool               `json:"success"`
		Data    domain.HistoryPage `json:"data"`
		Error   string             `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("history: decode response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("history: server error: %s", envelope.Error)
	}

	out := make([]domain.ChatMessage, 0, len(envelope.Data.Messages))
	for _, rec := range envelope.Data.Messages {
		out = append(out, domain.ChatMessage{
			ID:          rec.MessageID,
			AuthorID:    rec.AuthorID,
			AuthorName:  rec.AuthorName,
			Body:        rec.Body,
			Attachments: rec.Attachments,
			CreatedAt:   rec.CreatedAt,
			State:       domain.StateConfirmed,
		})
	}
	return out, nil
}

func readErrorDetail(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return string(b)
}
