package settings

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-memes-bot/internal/domain"
)

// RedisStore keeps the threshold in a string key and the reposted set in a
// Redis set plus a hash of claim timestamps, all under a fixed prefix.
type RedisStore struct {
	Client           *redis.Client
	Prefix           string
	DefaultThreshold int
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(ctx context.Context, redisURL, prefix string, def int) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisStore{Client: rdb, Prefix: prefix, DefaultThreshold: def}, nil
}

func (s *RedisStore) thresholdKey() string { return s.Prefix + ":threshold" }
func (s *RedisStore) repostedKey() string  { return s.Prefix + ":reposted" }
func (s *RedisStore) claimsKey() string    { return s.Prefix + ":reposted:claimed_at" }

func (s *RedisStore) Threshold(ctx context.Context) (int, error) {
	// SETNX initializes without clobbering a concurrent writer.
	if err := s.Client.SetNX(ctx, s.thresholdKey(), s.DefaultThreshold, 0).Err(); err != nil {
		return 0, unavailable("threshold", err)
	}
	v, err := s.Client.Get(ctx, s.thresholdKey()).Int()
	if errors.Is(err, redis.Nil) {
		return s.DefaultThreshold, nil
	}
	if err != nil {
		return 0, unavailable("threshold", err)
	}
	return v, nil
}

func (s *RedisStore) SetThreshold(ctx context.Context, n int) error {
	if n < 1 {
		return ErrInvalidThreshold
	}
	if err := s.Client.Set(ctx, s.thresholdKey(), n, 0).Err(); err != nil {
		return unavailable("set threshold", err)
	}
	return nil
}

func (s *RedisStore) IsReposted(ctx context.Context, postID string) (bool, error) {
	ok, err := s.Client.SIsMember(ctx, s.repostedKey(), postID).Result()
	if err != nil {
		return false, unavailable("is reposted", err)
	}
	return ok, nil
}

func (s *RedisStore) MarkReposted(ctx context.Context, postID, channelID string) (bool, error) {
	// SADD is the claim. HSETNX rides in the same MULTI so a claimed post
	// always has its record; a losing claimer's HSETNX is a no-op.
	var added *redis.IntCmd
	_, err := s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		added = p.SAdd(ctx, s.repostedKey(), postID)
		p.HSetNX(ctx, s.claimsKey(), postID, claimRecord(channelID, time.Now()))
		return nil
	})
	if err != nil {
		return false, unavailable("mark reposted", err)
	}
	return added.Val() == 1, nil
}

func claimRecord(channelID string, at time.Time) string {
	return channelID + "|" + strconv.FormatInt(at.UTC().Unix(), 10)
}

// ListReposted returns a page of claimed posts (newest first) and the total.
func (s *RedisStore) ListReposted(ctx context.Context, offset, limit int) ([]domain.Repost, int64, error) {
	total, err := s.Client.SCard(ctx, s.repostedKey()).Result()
	if err != nil {
		return nil, 0, unavailable("list reposts", err)
	}
	all, err := s.Client.HGetAll(ctx, s.claimsKey()).Result()
	if err != nil {
		return nil, 0, unavailable("list reposts", err)
	}
	out := make([]domain.Repost, 0, len(all))
	for id, v := range all {
		out = append(out, parseClaim(id, v))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].PostID > out[j].PostID
		}
		return out[i].ClaimedAt.After(out[j].ClaimedAt)
	})
	if offset >= len(out) {
		return []domain.Repost{}, total, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], total, nil
}

func parseClaim(postID, v string) domain.Repost {
	r := domain.Repost{PostID: postID}
	for i := len(v) - 1; i >= 0; i-- {
		if v[i] == '|' {
			r.ChannelID = v[:i]
			if sec, err := strconv.ParseInt(v[i+1:], 10, 64); err == nil {
				r.ClaimedAt = time.Unix(sec, 0).UTC()
			}
			break
		}
	}
	return r
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.Client.Close()
}
