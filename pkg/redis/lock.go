package redis

import (
	"context"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockPrefix = "lock:"

// releaseScript deletes the key only while it still holds our token, so an expired lock taken over
// by another run is left alone.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out single-holder locks with a TTL. It satisfies rematch.Locker.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Lock takes key for ttl. A held key is a Conflict; the returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lockKey := lockPrefix + key
	token := uuid.New().String()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, err, "acquire lock "+key)
	}
	if !ok {
		return nil, errkind.Newf(errkind.Conflict, "%s is held by another run", key).AddMetaValue("key", key)
	}

	l.client.logger.WithContext(ctx).Debugf("Acquired lock: %s", key)

	return func(ctx context.Context) error {
		released, err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, token).Int64()
		if err != nil {
			return errkind.Wrap(errkind.Transient, err, "release lock "+key)
		}
		if released == 0 {
			l.client.logger.WithContext(ctx).Warnf("Lock %s expired before release", key)
			return nil
		}
		l.client.logger.WithContext(ctx).Debugf("Released lock: %s", key)
		return nil
	}, nil
}
