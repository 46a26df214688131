// Package discord adapts the Discord REST API and gateway to the platform
// port. REST calls go through a retrying HTTP client that honours
// Retry-After on 429; the gateway is a plain websocket session that
// re-identifies after every disconnect.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-memes-bot/internal/delivery"
	"github.com/tbourn/go-memes-bot/internal/domain"
	"github.com/tbourn/go-memes-bot/internal/platform"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

const userAgent = "DiscordBot (https://github.com/tbourn/go-memes-bot, 1.0)"

// REST is a minimal Discord REST client implementing platform.Client.
type REST struct {
	baseURL string
	token   string
	http    *retryablehttp.Client

	mu      sync.RWMutex
	selfID  string
	guildOf map[string]string
	log     zerolog.Logger
}

var _ platform.Client = (*REST)(nil)

// RESTOption customizes a REST client.
type RESTOption func(*REST)

// WithHTTPClient replaces the underlying retrying client. Its CheckRetry
// is overridden with RetryPolicy.
func WithHTTPClient(c *retryablehttp.Client) RESTOption {
	return func(r *REST) { r.http = c }
}

// NewREST returns a client for baseURL (e.g. https://discord.com/api/v10).
func NewREST(baseURL, token string, opts ...RESTOption) *REST {
	lg := sysutil.Component("discord-rest")
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 10 * time.Second
	c.HTTPClient.Timeout = 15 * time.Second
	c.Logger = leveledZerolog{lg}

	r := &REST{
		baseURL: baseURL,
		token:   token,
		http:    c,
		guildOf: make(map[string]string),
		log:     lg,
	}
	for _, o := range opts {
		o(r)
	}
	r.http.CheckRetry = RetryPolicy
	return r
}

type methodKey struct{}

// RetryPolicy retries reads and idempotent writes like the default policy.
// A POST may already have created a message, so it is retried only when
// nothing was published: a 429 or a failed dial.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if m, _ := ctx.Value(methodKey{}).(string); m == http.MethodPost {
		return delivery.PostRetryPolicy(ctx, resp, err)
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// SelfID returns the bot user id, once known (Init or gateway READY).
func (r *REST) SelfID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selfID
}

// SetSelfID records the bot identity reported by the gateway.
func (r *REST) SetSelfID(id string) {
	r.mu.Lock()
	r.selfID = id
	r.mu.Unlock()
}

// Init resolves the bot's own user id.
func (r *REST) Init(ctx context.Context) error {
	var me user
	if err := r.do(ctx, http.MethodGet, "/users/@me", nil, &me); err != nil {
		return fmt.Errorf("resolve bot identity: %w", err)
	}
	r.SetSelfID(me.ID)
	return nil
}

func (r *REST) FetchPost(ctx context.Context, channelID, postID string) (*domain.Post, error) {
	var m message
	if err := r.do(ctx, http.MethodGet, "/channels/"+channelID+"/messages/"+postID, nil, &m); err != nil {
		return nil, err
	}
	p := m.toPost(r.guildID(ctx, channelID))
	return &p, nil
}

// FetchReactors reads the message's reaction list and pages through the
// users of every emoji.
func (r *REST) FetchReactors(ctx context.Context, post *domain.Post) (domain.ReactionSnapshot, error) {
	var m message
	if err := r.do(ctx, http.MethodGet, "/channels/"+post.ChannelID+"/messages/"+post.ID, nil, &m); err != nil {
		return nil, err
	}
	snap := make(domain.ReactionSnapshot, len(m.Reactions))
	for _, rc := range m.Reactions {
		key := rc.Emoji.apiEmoji()
		users, err := r.reactionUsers(ctx, post.ChannelID, post.ID, key)
		if err != nil {
			return nil, err
		}
		snap[key] = users
	}
	return snap, nil
}

func (r *REST) reactionUsers(ctx context.Context, channelID, messageID, emojiKey string) ([]string, error) {
	const limit = 100
	var (
		out   []string
		after string
	)
	for {
		q := url.Values{"limit": {strconv.Itoa(limit)}}
		if after != "" {
			q.Set("after", after)
		}
		path := "/channels/" + channelID + "/messages/" + messageID + "/reactions/" + url.PathEscape(emojiKey) + "?" + q.Encode()
		var page []user
		if err := r.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, u := range page {
			out = append(out, u.ID)
		}
		if len(page) < limit {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}

func (r *REST) WalkPosts(ctx context.Context, channelID string, pageSize int, fn func(domain.Post) error) error {
	if pageSize < 1 || pageSize > 100 {
		pageSize = 100
	}
	guildID := r.guildID(ctx, channelID)
	after := "0"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := url.Values{"limit": {strconv.Itoa(pageSize)}, "after": {after}}
		var page []message
		if err := r.do(ctx, http.MethodGet, "/channels/"+channelID+"/messages?"+q.Encode(), nil, &page); err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		sort.Slice(page, func(i, j int) bool { return snowflakeLess(page[i].ID, page[j].ID) })
		for _, m := range page {
			if err := fn(m.toPost(guildID)); err != nil {
				return err
			}
		}
		if len(page) < pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (r *REST) AddReaction(ctx context.Context, channelID, postID, emojiKey string) error {
	path := "/channels/" + channelID + "/messages/" + postID + "/reactions/" + url.PathEscape(emojiKey) + "/@me"
	return r.do(ctx, http.MethodPut, path, nil, nil)
}

func (r *REST) SendMessage(ctx context.Context, channelID, content string) error {
	body := map[string]any{
		"content":          content,
		"allowed_mentions": map[string]any{"parse": []string{}},
	}
	return r.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", body, nil)
}

// guildID resolves and caches the guild of a channel. Failures are logged
// and yield "" (permalinks then use the DM form).
func (r *REST) guildID(ctx context.Context, channelID string) string {
	r.mu.RLock()
	g, ok := r.guildOf[channelID]
	r.mu.RUnlock()
	if ok {
		return g
	}
	var ch channel
	if err := r.do(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch); err != nil {
		r.log.Warn().Err(err).Str("channel_id", channelID).Msg("resolve guild failed")
		return ""
	}
	r.mu.Lock()
	r.guildOf[channelID] = ch.GuildID
	r.mu.Unlock()
	return ch.GuildID
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status %d: %s", e.Status, e.Body)
}

func (r *REST) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	ctx = context.WithValue(ctx, methodKey{}, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+r.token)
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%s %s: %w", method, path, platform.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return &APIError{Status: resp.StatusCode, Body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// leveledZerolog adapts zerolog to retryablehttp.LeveledLogger. Errors are
// logged at warn because the client retries them.
type leveledZerolog struct{ l zerolog.Logger }

func (z leveledZerolog) Error(msg string, kv ...any) { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveledZerolog) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveledZerolog) Info(msg string, kv ...any)  { z.l.Debug().Fields(kv).Msg(msg) }
func (z leveledZerolog) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
