// Package platform declares the narrow view of the chat platform the curator
// depends on: an inbound event feed and a handful of REST-style reads and
// writes. Concrete adapters live in sub-packages.
package platform

import (
	"context"
	"errors"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

// ErrNotFound is returned when a referenced post or channel no longer
// exists (deleted between notification and fetch).
var ErrNotFound = errors.New("not found on platform")

// Client is the platform surface used by the repost engine, the backfill
// scanner and the command handler.
type Client interface {
	// SelfID is the bot's own identity; its reactions and posts are ignored.
	SelfID() string
	// FetchPost re-reads a post. Deleted posts yield ErrNotFound.
	FetchPost(ctx context.Context, channelID, postID string) (*domain.Post, error)
	// FetchReactors returns the live reaction snapshot of a post.
	FetchReactors(ctx context.Context, post *domain.Post) (domain.ReactionSnapshot, error)
	// WalkPosts visits every post of a channel oldest-first, pageSize posts
	// per request. A non-nil error from fn stops the walk and is returned.
	WalkPosts(ctx context.Context, channelID string, pageSize int, fn func(domain.Post) error) error
	// AddReaction reacts to a post as the bot.
	AddReaction(ctx context.Context, channelID, postID, emoji string) error
	// SendMessage posts a plain text message, used for command replies.
	SendMessage(ctx context.Context, channelID, content string) error
}

// Handler consumes the inbound event feed.
type Handler interface {
	OnNewPost(ctx context.Context, post domain.Post)
	OnReaction(ctx context.Context, ev domain.ReactionEvent)
}
