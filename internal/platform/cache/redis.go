package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger adapts a Redis client to the readiness probe contract.
type Pinger struct {
	Client *redis.Client
}

// Ping reports whether Redis answers.
func (p Pinger) Ping(ctx context.Context) error {
	if p.Client == nil {
		return fmt.Errorf("platform/cache: client not configured")
	}
	return p.Client.Ping(ctx).Err()
}

// New creates a Redis client and verifies it answers.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := (Pinger{Client: client}).Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}
