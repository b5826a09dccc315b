package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const windowCounterScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

// WindowCounter is a fixed-window counter shared by every instance through
// redis. Each window gets its own key, which expires with the window.
type WindowCounter struct {
	client redis.Scripter
	script *redis.Script
	now    func() time.Time
}

type WindowResult struct {
	Allowed    bool
	Limit      int64
	Count      int64
	ResetTime  time.Time
	RetryAfter time.Duration
}

func NewWindowCounter(client redis.Scripter) *WindowCounter {
	if client == nil {
		return nil
	}
	return &WindowCounter{
		client: client,
		script: redis.NewScript(windowCounterScript),
		now:    time.Now,
	}
}

// Hit counts one request against key in the current window.
func (w *WindowCounter) Hit(ctx context.Context, key string, limit int64, window time.Duration) (WindowResult, error) {
	if w == nil || w.client == nil {
		return WindowResult{}, errors.New("window counter not configured")
	}
	if key == "" {
		return WindowResult{}, errors.New("window counter key is empty")
	}
	if limit <= 0 {
		return WindowResult{}, errors.New("window counter limit must be positive")
	}
	if window < time.Millisecond {
		return WindowResult{}, errors.New("window counter window must be at least 1ms")
	}

	now := w.now()
	windowMs := window.Milliseconds()
	bucket := now.UnixMilli() / windowMs
	reset := time.UnixMilli((bucket + 1) * windowMs)

	count, err := w.script.Run(ctx, w.client, []string{bucketKey(key, bucket)}, windowMs).Int64()
	if err != nil {
		return WindowResult{}, err
	}

	res := WindowResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Count:     count,
		ResetTime: reset,
	}
	if !res.Allowed {
		res.RetryAfter = reset.Sub(now)
	}
	return res, nil
}
