// Package ratewindow provides sliding-window event counting per
// identity, with an in-process default and a Redis backend for
// multi-instance deployments.
package ratewindow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window counts events per identity inside a rolling time window.
type Window interface {
	// Hit records one event and returns the count inside the window,
	// the new event included.
	Hit(ctx context.Context, identity string) (int, error)
	// Count returns the current in-window count without recording.
	Count(ctx context.Context, identity string) (int, error)
}

// Memory is the in-process sliding window.
type Memory struct {
	mu       sync.Mutex
	window   time.Duration
	counters map[string][]time.Time
	now      func() time.Time
}

// NewMemory creates an in-process window.
func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{
		window:   window,
		counters: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (m *Memory) Hit(_ context.Context, identity string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	pruned := m.prune(identity, now)
	pruned = append(pruned, now)
	m.counters[identity] = pruned
	return len(pruned), nil
}

func (m *Memory) Count(_ context.Context, identity string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := m.prune(identity, m.now())
	if len(pruned) == 0 {
		delete(m.counters, identity)
	} else {
		m.counters[identity] = pruned
	}
	return len(pruned), nil
}

// prune drops timestamps that fell out of the window. Caller holds mu.
func (m *Memory) prune(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-m.window)
	timestamps := m.counters[identity]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}

// Redis is a sorted-set sliding window shared across instances.
type Redis struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedis creates a Redis-backed window. Keys are namespaced under
// the given prefix.
func NewRedis(client *redis.Client, window time.Duration, prefix string) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "blogshield:rate"
	}
	return &Redis{client: client, window: window, prefix: prefix}
}

func (r *Redis) key(identity string) string {
	return r.prefix + ":" + identity
}

func (r *Redis) Hit(ctx context.Context, identity string) (int, error) {
	key := r.key(identity)
	now := time.Now()
	cutoff := now.Add(-r.window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
	})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate window hit: %w", err)
	}
	return int(count.Val()), nil
}

func (r *Redis) Count(ctx context.Context, identity string) (int, error) {
	key := r.key(identity)
	cutoff := time.Now().Add(-r.window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate window count: %w", err)
	}
	return int(count.Val()), nil
}
