package survey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisLocker is the Locker for multi-node deployments. Participant keys are
// locked with SET NX and a TTL so a crashed node cannot hold a lock forever.
type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client) Locker {
	return &redisLocker{
		client: client,
		ttl:    30 * time.Second,
		retry:  50 * time.Millisecond,
	}
}

// Only delete the lock if it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (rl *redisLocker) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	lockKey := "lock:participant:" + key
	token := uuid.NewString()

	for {
		ok, err := rl.client.SetNX(ctx, lockKey, token, rl.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring participant lock: %w", err)
		}

		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rl.retry):
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		unlockScript.Run(ctx, rl.client, []string{lockKey}, token)
	}, nil
}
