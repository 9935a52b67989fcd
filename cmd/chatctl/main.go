// Command chatctl is a line-oriented terminal chat client. Each input line
// is sent to the room; lines starting with "/" are commands:
//
//	/typing               show who is typing
//	/pending              show unconfirmed messages
//	/attach <path> [text] send an image with optional caption
//	/quit                 leave and exit
//
// Retry policy lives here, not in the core: on transport failure chatctl
// reopens the session with bounded backoff, and pending messages older
// than the sweep window are marked failed.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tasklane/chatkit/internal/composer"
	"github.com/tasklane/chatkit/internal/config"
	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/internal/session"
	"github.com/tasklane/chatkit/pkg/jwt"
	"github.com/tasklane/chatkit/pkg/log"
)

const (
	maxOpenAttempts = 5
	initialBackoff  = time.Second
	pendingSweep    = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{
		Level:     cfg.Log.Level,
		Pretty:    cfg.Log.Pretty,
		Component: "chatctl",
	})
	l := log.L()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chatctl <room-id>")
		os.Exit(2)
	}
	roomID := os.Args[1]

	token := cfg.Auth.Token
	if token == "" && cfg.Auth.UserID != "" {
		// Dev convenience: mint a token against the devserver's default
		// secret instead of requiring a real credential source.
		token, err = jwt.NewManager("dev-secret", 24*time.Hour, "chatkit-dev").
			Generate(cfg.Auth.UserID, cfg.Auth.Username)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to mint dev token")
		}
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "no credential: set CHAT_TOKEN, or CHAT_USER_ID for a dev token")
		os.Exit(2)
	}

	sessCfg := session.Config{
		Transport:      cfg.WebSocket,
		Attachments:    cfg.Attachment,
		HistoryURL:     cfg.Server.HistoryURL,
		Identity:       domain.Identity{UserID: cfg.Auth.UserID, Username: cfg.Auth.Username},
		TypingExpiry:   cfg.Typing.Expiry,
		TypingDebounce: cfg.Typing.Debounce,
		OnMessage: func(m domain.ChatMessage) {
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Body)
		},
		OnTyping: func(states []domain.TypingState) {
			if len(states) == 0 {
				return
			}
			names := make([]string, 0, len(states))
			for _, s := range states {
				names = append(names, s.DisplayName)
			}
			fmt.Printf("… %s typing\n", strings.Join(names, ", "))
		},
		OnError: func(reason string) {
			fmt.Printf("!! transport: %s\n", reason)
		},
	}
	sessCfg.Transport.URL = cfg.Server.WSURL

	sess, err := openWithRetry(sessCfg, roomID, token)
	if err != nil {
		l.Fatal().Err(err).Msg("could not join room")
	}
	defer sess.Close()

	for _, m := range sess.Messages() {
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Body)
	}
	fmt.Printf("joined %s as %s\n", roomID, cfg.Auth.Username)

	go sweepPending(sess)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigs:
			fmt.Println("\nleaving room")
			return

		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.HasPrefix(line, "/") {
				if quit := runCommand(sess, line); quit {
					return
				}
				continue
			}
			if line == "" {
				continue
			}

			sess.NotifyLocalTyping()
			if _, err := sess.Send(context.Background(), line, nil); err != nil {
				switch {
				case errors.Is(err, domain.ErrEmptyMessage):
					// nothing to send
				case errors.Is(err, domain.ErrNotJoined), errors.Is(err, domain.ErrSessionClosed):
					fmt.Println("!! not connected")
				default:
					fmt.Printf("!! send failed: %v\n", err)
				}
			}
		}
	}
}

func runCommand(sess *session.Session, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return true
	case "/typing":
		for _, s := range sess.Typing() {
			fmt.Printf("  %s\n", s.DisplayName)
		}
	case "/pending":
		for _, m := range sess.Unconfirmed() {
			fmt.Printf("  %s (since %s)\n", m.Body, m.CreatedAt.Local().Format("15:04:05"))
		}
	case "/attach":
		if len(fields) < 2 {
			fmt.Println("usage: /attach <path> [caption]")
			return false
		}
		sendAttachment(sess, fields[1], strings.Join(fields[2:], " "))
	default:
		fmt.Println("commands: /typing /pending /attach /quit")
	}
	return false
}

func sendAttachment(sess *session.Session, path, caption string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("!! cannot read %s: %v\n", path, err)
		return
	}

	files := []composer.File{{Name: filepath.Base(path), Data: data}}
	if _, err := sess.Send(context.Background(), caption, files); err != nil {
		fmt.Printf("!! attach failed: %v\n", err)
	}
}

// sweepPending applies the caller-side timeout policy the core leaves
// open: optimistic entries that never reconciled are marked failed.
func sweepPending(sess *session.Session) {
	ticker := time.NewTicker(pendingSweep / 2)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-pendingSweep)
		for _, m := range sess.Unconfirmed() {
			if m.CreatedAt.Before(cutoff) {
				if sess.MarkFailed(m.CorrelationID) {
					fmt.Printf("!! message never confirmed: %q\n", m.Body)
				}
			}
		}
	}
}

func openWithRetry(cfg session.Config, roomID, token string) (*session.Session, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxOpenAttempts; attempt++ {
		sess, err := session.Open(cfg, roomID, token)
		if err == nil {
			return sess, nil
		}
		lastErr = err

		// A rejected credential never recovers by retrying.
		if errors.Is(err, domain.ErrAuthentication) {
			return nil, err
		}

		l := log.L()
		l.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("open failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", maxOpenAttempts, lastErr)
}
