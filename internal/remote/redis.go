package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores each path as a plain key holding the JSON-encoded value.
// Useful for local rigs where the device firmware writes to Redis instead of Firebase.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed store
func NewRedis(addr string, opts ...Option) *Redis {
	o := resolve(opts)
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			ReadTimeout:  o.Timeout,
			WriteTimeout: o.Timeout,
			DialTimeout:  o.Timeout,
		}),
	}
}

// Get reads the value at path
func (r *Redis) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := r.client.Get(ctx, path).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return data, nil
}

// Set writes value at path
func (r *Redis) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("set %s: encode value: %w", path, err)
	}
	if err := r.client.Set(ctx, path, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Close closes the underlying connection pool
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
