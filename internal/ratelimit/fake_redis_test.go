package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fakeRedis understands the scripts in this package and SETNX.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	counts  map[string]int64
	ttls    map[string]time.Duration
	failErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: map[string]string{},
		counts: map[string]int64{},
		ttls:   map[string]time.Duration{},
	}
}

var (
	windowHash  = redis.NewScript(windowCounterScript).Hash()
	releaseHash = redis.NewScript(leaseReleaseScript).Hash()
)

func (f *fakeRedis) run(sha string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewCmdResult(nil, f.failErr)
	}
	switch sha {
	case windowHash:
		f.counts[keys[0]]++
		if f.counts[keys[0]] == 1 {
			f.ttls[keys[0]] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(f.counts[keys[0]], nil)
	case releaseHash:
		if f.values[keys[0]] == args[0] {
			delete(f.values, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("NOSCRIPT %s", sha))
	}
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(redis.NewScript(script).Hash(), keys, args...)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.run(sha1, keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	out := make([]bool, len(hashes))
	for i, h := range hashes {
		out[i] = h == windowHash || h == releaseHash
	}
	return redis.NewBoolSliceResult(out, nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return redis.NewBoolResult(false, f.failErr)
	}
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}
