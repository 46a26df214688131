// Package delivery posts approved memes to the "top" channel.
package delivery

import (
	"context"
	"errors"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

// ErrDeliveryFailed is returned when the repost could not be published.
// The caller has already claimed the post and must not retry.
var ErrDeliveryFailed = errors.New("delivery failed")

// Repost is what the sink publishes: the original author's identity, the
// post text and media, and a link back to the original.
type Repost struct {
	PostID      string
	AuthorName  string
	AvatarURL   string
	Content     string
	Attachments []domain.Attachment
	Backlink    string
}

// FromPost builds the repost payload of p.
func FromPost(p domain.Post) Repost {
	return Repost{
		PostID:      p.ID,
		AuthorName:  p.Author.Name,
		AvatarURL:   p.Author.AvatarURL,
		Content:     p.Content,
		Attachments: p.Attachments,
		Backlink:    p.Permalink,
	}
}

// Sink publishes reposts.
type Sink interface {
	Deliver(ctx context.Context, r Repost) error
}
