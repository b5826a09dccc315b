package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/simcore/internal/config"
)

const keyIntakeWindow = "intake:rl:%s:%s"

func bucketKey(key string, bucket int64) string {
	return key + ":" + strconv.FormatInt(bucket, 10)
}

// IntakeLimiter limits inbound notifications per (source, client).
type IntakeLimiter struct {
	counter *WindowCounter
	limit   int64
	window  time.Duration
}

func NewIntakeLimiter(cfg config.Config, client *redis.Client) *IntakeLimiter {
	if client == nil || cfg.Intake.RateLimit <= 0 || cfg.Intake.RateWindow <= 0 {
		return nil
	}
	return newIntakeLimiter(client, cfg.Intake.RateLimit, cfg.Intake.RateWindow)
}

func newIntakeLimiter(client redis.Scripter, limit int64, window time.Duration) *IntakeLimiter {
	return &IntakeLimiter{
		counter: NewWindowCounter(client),
		limit:   limit,
		window:  window,
	}
}

func (l *IntakeLimiter) Enabled() bool {
	return l != nil && l.counter != nil
}

func (l *IntakeLimiter) Allow(ctx context.Context, source, clientID string) (WindowResult, error) {
	if !l.Enabled() {
		return WindowResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIntakeWindow, strings.ToLower(strings.TrimSpace(source)), strings.TrimSpace(clientID))
	return l.counter.Hit(ctx, key, l.limit, l.window)
}
