// Package notify publishes newly discovered records to downstream
// consumers. Publishing is best effort: the crawl never fails because a
// notification did.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher receives every record the moment it is appended to a sink.
type Publisher interface {
	Publish(ctx context.Context, stream string, record any) error
	Close() error
}

// Noop is the publisher used when no downstream is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

// RedisPublisher appends records to a capped Redis stream so downstream
// consumers (price alerts, search indexers) can tail new discoveries.
type RedisPublisher struct {
	client    *redis.Client
	stream    string
	maxLength int64
	logger    *slog.Logger
}

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Stream    string
	MaxLength int64
}

func NewRedisPublisher(ctx context.Context, opts RedisOptions) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPublisher{
		client:    client,
		stream:    opts.Stream,
		maxLength: opts.MaxLength,
		logger:    slog.Default().With("component", "notify"),
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLength,
		Approx: true,
		Values: map[string]interface{}{
			"stream": stream,
			"record": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
