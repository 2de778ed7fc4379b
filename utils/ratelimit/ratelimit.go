package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupChat/config"
)

// Limiter defines the interface for rate limiting operations
type Limiter interface {
	// Allow reports whether one more request fits in key's current window.
	Allow(ctx context.Context, key string, rule Rule) (bool, error)

	// Remaining returns how many requests are left in the current window.
	Remaining(ctx context.Context, key string, rule Rule) (int, error)

	// Reset clears the current window of key.
	Reset(ctx context.Context, key string, rule Rule) error
}

// Rule is a named budget of Limit requests per Window.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

const (
	RuleMessage = "message"
	RuleJoin    = "join"
	RuleAPI     = "api"
)

// Rules builds the per-minute rules of the user-facing write paths.
func Rules(cfg config.RateLimitConfig) map[string]Rule {
	return map[string]Rule{
		RuleMessage: {Name: RuleMessage, Limit: cfg.MessagePerMinute, Window: time.Minute},
		RuleJoin:    {Name: RuleJoin, Limit: cfg.JoinPerMinute, Window: time.Minute},
		RuleAPI:     {Name: RuleAPI, Limit: cfg.APIPerMinute, Window: time.Minute},
	}
}

// WindowLimiter counts requests per fixed window in Redis, so every node
// shares one budget per key.
type WindowLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool
	now         func() time.Time
}

// NewWindowLimiter creates a Redis backed limiter.
//
// Parameters:
//   - redisClient: Redis client for storing counters
//   - logger: Logger for recording rejections and Redis failures
//   - failOpen: If true, requests are allowed while Redis is unavailable
func NewWindowLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	bucketKey := l.bucketKey(key, rule)

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.Incr(ctx, bucketKey)
	// 多留一秒，避免窗口边界上计数提前过期
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request",
				zap.String("key", bucketKey),
				zap.Error(err),
			)
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	if count > int64(rule.Limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.String("rule", rule.Name),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
		)
		return false, nil
	}
	return true, nil
}

func (l *WindowLimiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, rule)).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return max(rule.Limit-count, 0), nil
}

func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	if err := l.redisClient.Del(ctx, l.bucketKey(key, rule)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for %s: %w", key, err)
	}
	return nil
}

// bucketKey names the counter of the window that contains now.
func (l *WindowLimiter) bucketKey(key string, rule Rule) string {
	window := int64(rule.Window / time.Second)
	if window <= 0 {
		window = 1
	}
	return fmt.Sprintf("ratelimit:%s:%s:%d", rule.Name, key, l.now().Unix()/window)
}
