package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStateTTL keeps fired-alert records long enough to cover a restart
// within the same session plus the following one.
const DefaultStateTTL = 48 * time.Hour

// RedisState stores fired-alert records in Redis so deduplication survives a
// monitor restart. Outages are tolerated: calls fail fast once the connection
// is marked unavailable and recover on the next successful ping.
type RedisState struct {
	client    *redis.Client
	ttl       time.Duration
	available atomic.Bool
	logger    *slog.Logger
}

// NewRedisState connects the state to an existing client. A nil ttl duration
// falls back to DefaultStateTTL.
func NewRedisState(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisState {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &RedisState{client: client, ttl: ttl, logger: logger}
	s.available.Store(true)
	return s
}

// Ping verifies connectivity and restores availability on success.
func (s *RedisState) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.markDown(err)
		return err
	}
	s.available.Store(true)
	return nil
}

// MarkFired records the condition with the configured TTL.
func (s *RedisState) MarkFired(ctx context.Context, epoch, ticker, condition string) error {
	if !s.available.Load() {
		return redis.ErrClosed
	}
	if err := s.client.Set(ctx, s.key(epoch, ticker, condition), "1", s.ttl).Err(); err != nil {
		s.markDown(err)
		return err
	}
	return nil
}

// WasFired reports whether the condition was already recorded.
func (s *RedisState) WasFired(ctx context.Context, epoch, ticker, condition string) (bool, error) {
	if !s.available.Load() {
		return false, redis.ErrClosed
	}
	n, err := s.client.Exists(ctx, s.key(epoch, ticker, condition)).Result()
	if err != nil {
		s.markDown(err)
		return false, err
	}
	return n > 0, nil
}

func (s *RedisState) key(epoch, ticker, condition string) string {
	return fmt.Sprintf("krx:alerts:%s:%s:%s", epoch, ticker, condition)
}

func (s *RedisState) markDown(err error) {
	if s.available.CompareAndSwap(true, false) {
		s.logger.Warn("redis unavailable, alert dedup degrades to memory", "error", err)
	}
}
