package distributor

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// TokenCache stores bearer tokens between requests and replicas.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	_ TokenCache = (*RedisTokens)(nil)
	_ TokenCache = (*MemoryTokens)(nil)
)

// RedisTokens shares tokens through Redis.
type RedisTokens struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisTokens creates a Redis-backed token cache.
func NewRedisTokens(client redis.UniversalClient) *RedisTokens {
	return &RedisTokens{client: client, prefix: "catalog:distributor-token:"}
}

func (c *RedisTokens) Get(ctx context.Context, key string) (string, bool, error) {
	token, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get token")
	}
	return token, true, nil
}

func (c *RedisTokens) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, token, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set token")
	}
	return nil
}

func (c *RedisTokens) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis delete token")
	}
	return nil
}

type memoryToken struct {
	value   string
	expires time.Time
}

// MemoryTokens keeps tokens in process memory.
type MemoryTokens struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

// NewMemoryTokens creates an in-process token cache.
func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]memoryToken), now: time.Now}
}

func (c *MemoryTokens) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tokens[key]
	if !ok || !c.now().Before(t.expires) {
		delete(c.tokens, key)
		return "", false, nil
	}
	return t.value, true, nil
}

func (c *MemoryTokens) Set(_ context.Context, key, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = memoryToken{value: token, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryTokens) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	return nil
}
