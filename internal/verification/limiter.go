package verification

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"idecide/pkg/platform/sentinel"
)

// LimiterStore counts code-issuance attempts in a sliding window. Record
// registers one attempt for the key and returns the number of attempts still
// inside the window, including this one.
type LimiterStore interface {
	Record(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

// Limiter rejects issuance requests once a patient or source IP exceeds the
// configured attempts per window. The window slides: old attempts age out
// rather than resetting on a boundary.
type Limiter struct {
	store  LimiterStore
	max    int
	window time.Duration
}

func NewLimiter(store LimiterStore, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window}
}

// Allow records one attempt per key and fails with ErrRateLimited when any
// key is over budget. Both keys are recorded before the check so an attacker
// rotating NHS numbers still burns their IP budget.
func (l *Limiter) Allow(ctx context.Context, now time.Time, keys ...string) error {
	if l == nil {
		return nil
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		count, err := l.store.Record(ctx, key, now, l.window)
		if err != nil {
			return fmt.Errorf("rate limit check: %w", err)
		}
		if count > l.max {
			return fmt.Errorf("issuance budget for %q exhausted: %w", key, sentinel.ErrRateLimited)
		}
	}
	return nil
}

// InMemoryLimiterStore tracks attempts per key in memory.
type InMemoryLimiterStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func NewInMemoryLimiterStore() *InMemoryLimiterStore {
	return &InMemoryLimiterStore{attempts: make(map[string][]time.Time)}
}

func (s *InMemoryLimiterStore) Record(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-window)
	kept := s.attempts[key][:0]
	for _, t := range s.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.attempts[key] = kept
	return len(kept), nil
}

// RedisLimiterStore implements the sliding window on a sorted set per key so
// multiple instances share one budget.
type RedisLimiterStore struct {
	client goredis.UniversalClient
	prefix string
}

func NewRedisLimiterStore(client goredis.UniversalClient) *RedisLimiterStore {
	return &RedisLimiterStore{client: client, prefix: "idecide:codelimit:"}
}

func (s *RedisLimiterStore) Record(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	redisKey := s.prefix + key
	cutoff := now.Add(-window).UnixNano()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, goredis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	card := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis rate limit: %w", err)
	}
	return int(card.Val()), nil
}
