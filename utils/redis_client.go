package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRemoteClient creates the client for the remote replicated store with
// connection pooling. The remote store is best-effort: a failed initial ping
// is logged, not fatal, so the service keeps running on local state alone.
func NewRemoteClient(url, password string, db int) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		// Fall back to simple connection
		opts = &redis.Options{
			Addr:     url,
			Password: password,
			DB:       db,
		}
	}

	opts.PoolSize = 20
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Remote store connectivity check failed: %v (sync will retry per-operation)", err)
	} else {
		log.Println("Successfully connected to remote store")
	}
	return client
}

// RemoteHealthCheck performs a health check on the remote store connection.
func RemoteHealthCheck(client *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("remote store health check failed: %w", err)
	}

	return nil
}
