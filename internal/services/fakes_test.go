package services

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tbourn/go-memes-bot/internal/delivery"
	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/platform"
)

const (
	testChannel = "memes"
	testSelf    = "bot"
)

// ----- Fake platform -----

type fakePlatform struct {
	mu sync.Mutex

	self      string
	posts     map[string]domain.Post
	snapshots map[string]domain.ReactionSnapshot

	fetchErr   error
	walkErr    error
	reactorsFn func(postID string) (domain.ReactionSnapshot, error)

	fetches   int
	reactions []string // "post:emoji"
	sent      []string // "channel:content"
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		self:      testSelf,
		posts:     map[string]domain.Post{},
		snapshots: map[string]domain.ReactionSnapshot{},
	}
}

var _ platform.Client = (*fakePlatform)(nil)

func (f *fakePlatform) SelfID() string { return f.self }

func (f *fakePlatform) put(p domain.Post, snap domain.ReactionSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID] = p
	f.snapshots[p.ID] = snap
}

func (f *fakePlatform) FetchPost(ctx context.Context, channelID, postID string) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	p, ok := f.posts[postID]
	if !ok || p.ChannelID != channelID {
		return nil, platform.ErrNotFound
	}
	return &p, nil
}

func (f *fakePlatform) FetchReactors(ctx context.Context, post *domain.Post) (domain.ReactionSnapshot, error) {
	if f.reactorsFn != nil {
		return f.reactorsFn(post.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[post.ID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	out := make(domain.ReactionSnapshot, len(snap))
	for k, v := range snap {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (f *fakePlatform) WalkPosts(ctx context.Context, channelID string, pageSize int, fn func(domain.Post) error) error {
	f.mu.Lock()
	if f.walkErr != nil {
		f.mu.Unlock()
		return f.walkErr
	}
	var all []domain.Post
	for _, p := range f.posts {
		if p.ChannelID == channelID {
			all = append(all, p)
		}
	}
	f.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	for _, p := range all {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePlatform) AddReaction(ctx context.Context, channelID, postID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, postID+":"+emoji)
	return nil
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+":"+content)
	return nil
}

func (f *fakePlatform) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakePlatform) addedReactions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reactions...)
}

// ----- Fake sink -----

type fakeSink struct {
	mu    sync.Mutex
	got   []delivery.Repost
	err   error
	delay time.Duration
}

func (s *fakeSink) Deliver(ctx context.Context, r delivery.Repost) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	return s.err
}

func (s *fakeSink) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

// ----- Fixtures -----

var errBoom = errors.New("boom")

// memePost returns an eligible post in the watched channel.
func memePost(id string) domain.Post {
	n, _ := strconv.Atoi(id)
	return domain.Post{
		ID:          id,
		ChannelID:   testChannel,
		GuildID:     "g",
		Author:      domain.Author{ID: "author-" + id, Name: "alice", AvatarURL: "https://cdn/a.png"},
		Content:     "meme " + id,
		Attachments: []domain.Attachment{{ID: "a" + id, URL: "https://cdn/" + id + ".png", Filename: id + ".png"}},
		Permalink:   "https://discord.com/channels/g/" + testChannel + "/" + id,
		CreatedAt:   time.Unix(int64(1_700_000_000+n), 0),
	}
}

// reactors returns a snapshot with n distinct users on one emoji.
func reactors(n int) domain.ReactionSnapshot {
	users := make([]string, n)
	for i := range users {
		users[i] = "u" + strconv.Itoa(i)
	}
	return domain.ReactionSnapshot{"👍": users}
}
