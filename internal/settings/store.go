// Package settings is the bot's durable settings store: the live repost
// threshold and the append-only set of posts already claimed for a repost.
//
// Every implementation must make MarkReposted an atomic insert-if-absent.
// The repost engine relies on that primitive, not on the distributed lock,
// for at-most-once delivery.
package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

var (
	// ErrInvalidThreshold is returned by SetThreshold for values below 1.
	// The stored value is left untouched.
	ErrInvalidThreshold = errors.New("threshold must be a positive integer")

	// ErrUnavailable wraps backend failures (connection refused, timeouts,
	// driver errors) so callers can tell them apart from validation errors.
	ErrUnavailable = errors.New("settings store unavailable")
)

// Store is the contract consumed by the repost engine and the admin surface.
type Store interface {
	// Threshold returns the current repost threshold, initializing it to the
	// store's default on first use.
	Threshold(ctx context.Context) (int, error)
	// SetThreshold replaces the threshold. n must be >= 1.
	SetThreshold(ctx context.Context, n int) error
	// IsReposted reports whether postID has been claimed.
	IsReposted(ctx context.Context, postID string) (bool, error)
	// MarkReposted claims postID. It returns true only for the caller that
	// inserted it; a post already present yields false.
	MarkReposted(ctx context.Context, postID, channelID string) (bool, error)
}

// Lister pages through claimed posts, newest first. Every store in this
// package implements it.
type Lister interface {
	ListReposted(ctx context.Context, offset, limit int) ([]domain.Repost, int64, error)
}

// AsLister returns the Lister behind s, looking through decorators.
func AsLister(s Store) (Lister, bool) {
	for {
		if l, ok := s.(Lister); ok {
			return l, true
		}
		u, ok := s.(interface{ Unwrap() Store })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
