package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is the cache surface used by the read-side handlers.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// RedisClient wraps go-redis. When no address is configured the client is
// disabled and every operation degrades to a miss, so handlers never need
// to special-case a missing cache.
type RedisClient struct {
	client  *redis.Client
	enabled bool
}

// NewRedisClient connects to Redis, or returns a disabled client when addr
// is empty.
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	if addr == "" {
		return &RedisClient{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, enabled: true}, nil
}

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	if !r.enabled {
		return "", redis.Nil
	}
	return r.client.Get(ctx, key).Result()
}

func (r *RedisClient) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if !r.enabled {
		return nil
	}
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	if !r.enabled || len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisClient) Close() error {
	if !r.enabled {
		return nil
	}
	return r.client.Close()
}

// SetJSON stores a JSON-serialised value.
func SetJSON(ctx context.Context, c Client, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), expiration)
}

// GetJSON retrieves and deserialises a JSON value. A miss returns the
// underlying error unchanged.
func GetJSON(ctx context.Context, c Client, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return err == redis.Nil
}

// MemoryCache is an in-process Client used in tests.
type MemoryCache struct {
	mu    sync.Mutex
	store map[string]memoryItem
}

type memoryItem struct {
	value      string
	expiration time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]memoryItem)}
}

func (m *MemoryCache) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, exists := m.store[key]
	if !exists || time.Now().After(item.expiration) {
		delete(m.store, key)
		return "", redis.Nil
	}
	return item.value, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	var strValue string
	switch v := value.(type) {
	case string:
		strValue = v
	case []byte:
		strValue = string(v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		strValue = string(data)
	}

	if expiration <= 0 {
		expiration = 24 * time.Hour
	}

	m.mu.Lock()
	m.store[key] = memoryItem{value: strValue, expiration: time.Now().Add(expiration)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.store, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.store = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}
