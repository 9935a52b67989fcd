// Package composer turns user input into protocol messages: it validates
// the draft, encodes image attachments for transport, inserts the
// optimistic copy into the message store, and hands the wire payload to
// the transport session.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/tasklane/chatkit/internal/domain"
	"github.com/tasklane/chatkit/internal/store"
)

// Transport is the slice of the transport session the composer needs.
type Transport interface {
	Joined() bool
	SendMessage(correlationID, body string, attachments []domain.Attachment) error
}

// File is a raw attachment as picked by the user.
type File struct {
	Name string
	Data []byte
}

// Config tunes attachment encoding.
type Config struct {
	// MaxDimension caps the longest image edge; larger images are scaled
	// down before transport. Zero disables scaling.
	MaxDimension int `mapstructure:"max_dimension"`
	// JPEGQuality is the re-encode quality, 1-100.
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

func (c Config) withDefaults() Config {
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 85
	}
	return c
}

// Composer publishes locally-authored messages.
type Composer struct {
	store     *store.Store
	transport Transport
	author    domain.Identity
	cfg       Config
}

func New(s *store.Store, t Transport, author domain.Identity, cfg Config) *Composer {
	return &Composer{
		store:     s,
		transport: t,
		author:    author,
		cfg:       cfg.withDefaults(),
	}
}

// Send validates and publishes one logical message. It returns the
// correlation id of the optimistic entry on success,
// domain.ErrEmptyMessage when there is nothing to send, and
// domain.ErrNotJoined when the transport is not joined; in both error
// cases nothing reaches the store or the wire.
func (c *Composer) Send(ctx context.Context, text string, files []File) (string, error) {
	body := strings.TrimSpace(text)
	if body == "" && len(files) == 0 {
		return "", domain.ErrEmptyMessage
	}
	if !c.transport.Joined() {
		return "", domain.ErrNotJoined
	}

	attachments, err := c.encodeAll(ctx, files)
	if err != nil {
		return "", err
	}

	corrID := c.store.AppendLocal(store.Draft{
		AuthorID:    c.author.UserID,
		AuthorName:  c.author.Username,
		Body:        body,
		Attachments: attachments,
	})

	if err := c.transport.SendMessage(corrID, body, attachments); err != nil {
		c.store.MarkFailed(corrID)
		return corrID, err
	}
	return corrID, nil
}

// encodeAll encodes each file as its own unit of work but gathers every
// result before anything is transmitted; a multi-attachment send stays one
// logical message.
func (c *Composer) encodeAll(ctx context.Context, files []File) ([]domain.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}

	out := make([]domain.Attachment, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			att, err := c.encode(f)
			if err != nil {
				return err
			}
			out[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// encode decodes the image, scales it down to the configured cap, and
// re-encodes as JPEG ready for base64 transport.
func (c *Composer) encode(f File) (domain.Attachment, error) {
	img, err := imaging.Decode(bytes.NewReader(f.Data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("decode attachment %q: %w", f.Name, err)
	}

	if c.cfg.MaxDimension > 0 {
		bounds := img.Bounds()
		if bounds.Dx() > c.cfg.MaxDimension || bounds.Dy() > c.cfg.MaxDimension {
			img = imaging.Fit(img, c.cfg.MaxDimension, c.cfg.MaxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.cfg.JPEGQuality)); err != nil {
		return domain.Attachment{}, fmt.Errorf("encode attachment %q: %w", f.Name, err)
	}

	return domain.Attachment{
		Name: f.Name,
		MIME: "image/jpeg",
		Data: buf.Bytes(),
	}, nil
}
