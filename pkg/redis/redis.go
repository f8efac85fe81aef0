package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// ErrNotConnected returned by every helper when no client was installed
var ErrNotConnected = errors.New("redis not connected")

// releaseScript deletes the key only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SetClient installs the client (called from internal/initial)
func SetClient(c *redis.Client) {
	client = c
}

// Close closes the connection
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// IsConnected reports whether a client is installed
func IsConnected() bool {
	return client != nil
}

// GetClient raw client
func GetClient() *redis.Client {
	return client
}

func checkClient() error {
	if client == nil {
		return ErrNotConnected
	}
	return nil
}

// SetNX sets the value only when the key is absent
func SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if err := checkClient(); err != nil {
		return false, err
	}
	return client.SetNX(ctx, key, value, expiration).Result()
}

// Del deletes keys
func Del(ctx context.Context, keys ...string) (int64, error) {
	if err := checkClient(); err != nil {
		return 0, err
	}
	return client.Del(ctx, keys...).Result()
}

// Lock takes a token-owned lock; the token is needed to release it
func Lock(ctx context.Context, key, token string, expiration time.Duration) (bool, error) {
	return SetNX(ctx, key, token, expiration)
}

// Unlock releases the lock if token still owns it
func Unlock(ctx context.Context, key, token string) error {
	if err := checkClient(); err != nil {
		return err
	}
	return releaseScript.Run(ctx, client, []string{key}, token).Err()
}

// Get returns "" and no error when the key does not exist
func Get(ctx context.Context, key string) (string, error) {
	if err := checkClient(); err != nil {
		return "", err
	}
	val, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Set writes a value with expiration (0 = no expiration)
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := checkClient(); err != nil {
		return err
	}
	return client.Set(ctx, key, value, expiration).Err()
}

// Cache adapts the package client to the handler response cache
type Cache struct{}

func (Cache) Get(ctx context.Context, key string) (string, error) {
	return Get(ctx, key)
}

func (Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return Set(ctx, key, value, ttl)
}

func (Cache) Del(ctx context.Context, keys ...string) (int64, error) {
	return Del(ctx, keys...)
}
