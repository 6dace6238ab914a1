// Package ratelimit implements per-plan fixed-window admission control
// for proxied requests. Limiter state is in-memory and per-instance;
// limits are advisory, not a security boundary.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/sorobuild/rpc-gateway/internal/apierror"
)

// Limit is a plan's quota: Points requests per Window.
type Limit struct {
	Points int
	Window time.Duration
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() map[string]Limit {
	return map[string]Limit{
		"free": {Points: 1500, Window: 60 * time.Second},
		"pro":  {Points: 2000, Window: 60 * time.Second},
	}
}

// Limiter admits requests against per-plan fixed windows. One bucket set
// exists per plan, created lazily on first use and kept for the process
// lifetime; the plan table is small and fixed, so the map never needs
// eviction.
type Limiter struct {
	mu      sync.RWMutex
	plans   map[string]Limit
	buckets map[string]*planBucket

	now func() time.Time
}

// planBucket holds the fixed-window counters of one plan, keyed by the
// caller's limiter key.
type planBucket struct {
	mu       sync.Mutex
	limit    Limit
	counters map[string]*window
}

type window struct {
	start time.Time
	count int
}

// New creates a Limiter with the given plan table. A nil table uses
// DefaultPlans.
func New(plans map[string]Limit) *Limiter {
	if plans == nil {
		plans = DefaultPlans()
	}
	return &Limiter{
		plans:   plans,
		buckets: make(map[string]*planBucket),
		now:     time.Now,
	}
}

// Admit consumes one point from the plan's bucket for limiterKey.
// It returns a TooManyRequests error when the window's budget is spent
// and a Configuration error for a plan missing from the table.
func (l *Limiter) Admit(plan, limiterKey string) error {
	bucket, err := l.bucketFor(plan)
	if err != nil {
		return err
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := l.now()
	start := now.Truncate(bucket.limit.Window)

	w, ok := bucket.counters[limiterKey]
	if !ok || w.start.Before(start) {
		w = &window{start: start}
		bucket.counters[limiterKey] = w
	}

	if w.count >= bucket.limit.Points {
		return apierror.TooManyRequests("rate limit exceeded, try again later")
	}
	w.count++
	return nil
}

// Remaining reports how many points are left for limiterKey in the
// current window.
func (l *Limiter) Remaining(plan, limiterKey string) (int, error) {
	bucket, err := l.bucketFor(plan)
	if err != nil {
		return 0, err
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	start := l.now().Truncate(bucket.limit.Window)
	w, ok := bucket.counters[limiterKey]
	if !ok || w.start.Before(start) {
		return bucket.limit.Points, nil
	}
	remaining := bucket.limit.Points - w.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *Limiter) bucketFor(plan string) (*planBucket, error) {
	l.mu.RLock()
	bucket, ok := l.buckets[plan]
	l.mu.RUnlock()
	if ok {
		return bucket, nil
	}

	limit, ok := l.plans[plan]
	if !ok {
		return nil, apierror.Configuration(fmt.Sprintf("no rate limit configured for plan %q", plan))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check under the write lock; another request may have won the race.
	if bucket, ok := l.buckets[plan]; ok {
		return bucket, nil
	}
	bucket = &planBucket{
		limit:    limit,
		counters: make(map[string]*window),
	}
	l.buckets[plan] = bucket
	return bucket, nil
}
