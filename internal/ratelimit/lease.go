package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const keyJobLease = "reconcile:lease:%s"

// leaseReleaseScript deletes the lease only while it still carries the
// caller's token.
const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// ErrLeaseLost is returned by Release when the lease ran out before the job
// finished. Another instance may hold it by then.
var ErrLeaseLost = errors.New("job_lease_lost")

type leaseClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// JobLease keeps one instance running a reconcile job at a time. Without
// redis every Acquire succeeds.
type JobLease struct {
	client  leaseClient
	release *redis.Script
	holder  string
}

func NewJobLease(client *redis.Client) *JobLease {
	if client == nil {
		return &JobLease{}
	}
	return newJobLease(client, leaseHolder())
}

func newJobLease(client leaseClient, holder string) *JobLease {
	return &JobLease{
		client:  client,
		release: redis.NewScript(leaseReleaseScript),
		holder:  holder,
	}
}

func leaseHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

func (l *JobLease) Enabled() bool {
	return l != nil && l.client != nil
}

// Lease is one granted hold on a job.
type Lease struct {
	owner *JobLease
	key   string
	token string
}

// Acquire takes the lease on job for ttl. ok is false while another
// instance holds it.
func (l *JobLease) Acquire(ctx context.Context, job string, ttl time.Duration) (*Lease, bool, error) {
	if !l.Enabled() {
		return &Lease{}, true, nil
	}
	job = strings.TrimSpace(job)
	if job == "" {
		return nil, false, errors.New("lease job is empty")
	}
	if ttl <= 0 {
		return nil, false, errors.New("lease ttl must be positive")
	}

	key := fmt.Sprintf(keyJobLease, job)
	token := l.holder + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lease{owner: l, key: key, token: token}, true, nil
}

// Token names the holding instance. It is empty when leasing is off.
func (l *Lease) Token() string {
	if l == nil {
		return ""
	}
	return l.token
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == nil {
		return nil
	}
	deleted, err := l.owner.release.Run(ctx, l.owner.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrLeaseLost
	}
	return nil
}
