package settings

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached fronts a Store with an in-process LRU of post ids known to be
// reposted. Only positive answers are cached: an id never leaves the
// reposted set, so a hit can never go stale. Threshold reads always reach
// the backing store so admin changes apply on the next evaluation.
type Cached struct {
	Store
	known *lru.Cache[string, struct{}]
}

// NewCached wraps s with an LRU of the given size. A size < 1 returns s
// unchanged.
func NewCached(s Store, size int) Store {
	if size < 1 {
		return s
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return s
	}
	return &Cached{Store: s, known: c}
}

func (c *Cached) IsReposted(ctx context.Context, postID string) (bool, error) {
	if c.known.Contains(postID) {
		return true, nil
	}
	ok, err := c.Store.IsReposted(ctx, postID)
	if err != nil {
		return false, err
	}
	if ok {
		c.known.Add(postID, struct{}{})
	}
	return ok, nil
}

func (c *Cached) MarkReposted(ctx context.Context, postID, channelID string) (bool, error) {
	ok, err := c.Store.MarkReposted(ctx, postID, channelID)
	if err != nil {
		return false, err
	}
	// whether we won or lost the claim, the id is now in the set
	c.known.Add(postID, struct{}{})
	return ok, nil
}

// Unwrap returns the backing store.
func (c *Cached) Unwrap() Store { return c.Store }
