package store

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// Redis keeps the state blob under a single key.
type Redis struct {
	Client *redis.Client
	key    string
}

// NewRedis wraps client, storing the state under namespace.
func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Redis{Client: client, key: namespace}
}

// Load reads the state key.
func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	blob, err := r.Client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.NotFoundf("state %q", r.key)
	}
	return blob, errors.Annotatef(err, "loading state %q", r.key)
}

// Save overwrites the state key.
func (r *Redis) Save(ctx context.Context, blob []byte) error {
	err := r.Client.Set(ctx, r.key, blob, 0).Err()
	return errors.Annotatef(err, "saving state %q", r.key)
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
