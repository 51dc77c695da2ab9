package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue pushes messages onto a Redis list and drains it from a
// worker loop, so a relay outage delays delivery instead of losing it
// and multiple nodes can share one outbox.
type RedisQueue struct {
	client   *redis.Client
	key      string
	notifier Notifier
}

// RedisConfig configures the queue connection.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// Key is the list key holding pending messages.
	Key string
}

// DefaultQueueKey is used when RedisConfig leaves Key empty.
const DefaultQueueKey = "signflow:outbox"

// NewRedisQueue connects to Redis and returns a queue delivering
// through the given notifier.
func NewRedisQueue(conf RedisConfig, n Notifier) *RedisQueue {
	if conf.Key == "" {
		conf.Key = DefaultQueueKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Password: conf.Password,
		DB:       conf.DB,
	})
	return &RedisQueue{client: client, key: conf.Key, notifier: n}
}

// Enqueue appends the message to the outbox list.
func (q *RedisQueue) Enqueue(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// Run drains the outbox until the context is canceled. Undeliverable
// messages are logged and dropped; decode failures are logged and
// skipped so one bad record cannot wedge the queue.
func (q *RedisQueue) Run(ctx context.Context) {
	for {
		val, err := q.client.BLPop(ctx, 5*time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[ERROR] notify: outbox pop failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(val) < 2 {
			continue
		}

		var m Message
		if err := json.Unmarshal([]byte(val[1]), &m); err != nil {
			log.Printf("[ERROR] notify: dropping undecodable outbox record: %v", err)
			continue
		}
		if err := q.notifier.Send(ctx, m); err != nil {
			log.Printf("[ERROR] notify: send to %s failed: %v", m.To, err)
			continue
		}
		log.Printf("[INFO] notify: sent %q to %s", m.Subject, m.To)
	}
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
