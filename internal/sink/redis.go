package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// Publisher is the subset of *redis.Client the publisher needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // channel prefix (default "auraxis")
}

// RedisPublisher publishes each event as a JSON Record on the channel
// "<prefix>:<EventName>", so subscribers can PSUBSCRIBE "<prefix>:*".
type RedisPublisher struct {
	client Publisher
	prefix string
	now    func() time.Time
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisPublisher(client, opts.Prefix), nil
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(client Publisher, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "auraxis"
	}
	return &RedisPublisher{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisPublisher) Name() string { return "redis" }

// Channel returns the channel an event name is published on.
func (r *RedisPublisher) Channel(name events.Name) string {
	return r.prefix + ":" + string(name)
}

func (r *RedisPublisher) Write(ctx context.Context, ev events.Event) error {
	rec, err := NewRecord(ev, r.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(ev.EventName()), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
