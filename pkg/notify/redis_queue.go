package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// pushIfRoom appends to the list only while it is below the cap
var pushIfRoom = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
return 1
`)

const defaultPollTimeout = time.Second

// RedisQueue is a bounded queue stored in a Redis list, so undelivered
// messages survive a restart. Messages are stored whole, Secret included,
// until a worker pops them.
type RedisQueue struct {
	client      *redis.Client
	key         string
	maxLen      int64
	pollTimeout time.Duration
	closed      atomic.Bool
}

// NewRedisQueue wraps client; the caller keeps ownership of the client
func NewRedisQueue(client *redis.Client, key string, maxLen int) *RedisQueue {
	if key == "" {
		key = "smartworking:notifications"
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisQueue{
		client:      client,
		key:         key,
		maxLen:      int64(maxLen),
		pollTimeout: defaultPollTimeout,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	pushed, err := pushIfRoom.Run(ctx, q.client, []string{q.key}, payload, q.maxLen).Int()
	if err != nil {
		return fmt.Errorf("pushing message: %w", err)
	}
	if pushed == 0 {
		return ErrQueueFull
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Message, error) {
	for {
		if q.closed.Load() {
			// drain without blocking
			raw, err := q.client.RPop(ctx, q.key).Result()
			if errors.Is(err, redis.Nil) {
				return Message{}, ErrQueueClosed
			}
			if err != nil {
				return Message{}, fmt.Errorf("popping message: %w", err)
			}
			return decodeMessage(raw)
		}

		res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, fmt.Errorf("popping message: %w", err)
		}
		// BRPOP replies [key, value]
		return decodeMessage(res[1])
	}
}

// Close stops accepting messages; buffered ones remain in Redis
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}

// Len reports the number of buffered messages
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func decodeMessage(raw string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return msg, nil
}
