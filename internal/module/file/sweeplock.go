package file

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock key only if this instance still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisSweepLock implements Locker with a Redis SETNX lease.
type RedisSweepLock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisSweepLock creates a sweep lock. The TTL bounds how long a crashed
// holder can block other instances.
func NewRedisSweepLock(client redis.UniversalClient, key string, ttl time.Duration) *RedisSweepLock {
	if key == "" {
		key = "reaper:sweep-lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisSweepLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take the lease without blocking.
func (l *RedisSweepLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release drops the lease if this instance still holds it.
func (l *RedisSweepLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
