package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a shared Redis.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	opts   Options
}

// NewRedisLocker returns a locker over an existing client. Keys are
// "<prefix>:lock:<name>".
func NewRedisLocker(client *redis.Client, prefix string, opts Options) *RedisLocker {
	return &RedisLocker{Client: client, Prefix: prefix, opts: opts.withDefaults()}
}

func (l *RedisLocker) key(name string) string { return l.Prefix + ":lock:" + name }

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	key := l.key(name)
	token := uuid.NewString()
	err := retry(ctx, l.opts, func() (bool, error) {
		return l.Client.SetNX(ctx, key, token, l.opts.TTL).Result()
	})
	if err != nil {
		return nil, err
	}
	return &redisLease{client: l.Client, key: key, token: token}, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	// release even when the evaluation context is already done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err()
}
