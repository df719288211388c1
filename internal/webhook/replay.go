package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard remembers accepted deliveries for a while.
type ReplayGuard interface {
	// MarkSeen records key and reports whether it was new.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops key so that a redelivery is accepted again.
	Forget(ctx context.Context, key string) error
}

type redisReplayGuard struct {
	client redis.Cmdable
	prefix string
}

func NewRedisReplayGuard(client redis.Cmdable, prefix string) ReplayGuard {
	return &redisReplayGuard{client: client, prefix: prefix}
}

func (g *redisReplayGuard) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return g.prefix + hex.EncodeToString(sum[:])
}

func (g *redisReplayGuard) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.redisKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording webhook delivery: %w", err)
	}
	return ok, nil
}

func (g *redisReplayGuard) Forget(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("forgetting webhook delivery: %w", err)
	}
	return nil
}

type memoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayGuard() ReplayGuard {
	return &memoryReplayGuard{seen: make(map[string]time.Time), now: time.Now}
}

func (g *memoryReplayGuard) MarkSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.seen {
		if now.After(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}

func (g *memoryReplayGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
