package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/clawgate/pkg/logger"
	"github.com/tinyland-inc/clawgate/pkg/policy"
)

// DefaultCacheTTL is how long fetched policies stay fresh.
const DefaultCacheTTL = 5 * time.Minute

// PolicySource fetches policies; satisfied by *Client and by test fakes.
type PolicySource interface {
	FetchPolicies(ctx context.Context, dir policy.Direction) ([]Policy, error)
}

type cacheEntry struct {
	policies  []Policy
	fetchedAt time.Time
}

// PolicyCache caches registry policies per direction with a TTL. On fetch
// failure it serves stale data rather than failing open or closed
// indiscriminately.
type PolicyCache struct {
	source PolicySource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[policy.Direction]*cacheEntry
}

// NewPolicyCache creates a cache over the given source. A zero ttl falls
// back to DefaultCacheTTL.
func NewPolicyCache(source PolicySource, ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &PolicyCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[policy.Direction]*cacheEntry),
	}
}

// WithClock overrides the time source, for tests.
func (c *PolicyCache) WithClock(now func() time.Time) *PolicyCache {
	c.now = now
	return c
}

// Policies returns cached policies for a direction, refreshing when the TTL
// has lapsed. Stale data is returned on refresh failure; the error is
// surfaced only when there is nothing cached at all.
func (c *PolicyCache) Policies(ctx context.Context, dir policy.Direction) ([]Policy, error) {
	c.mu.Lock()
	entry, ok := c.entries[dir]
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		policies := entry.policies
		c.mu.Unlock()
		return policies, nil
	}
	c.mu.Unlock()

	fetched, err := c.source.FetchPolicies(ctx, dir)
	if err != nil {
		if ok {
			logger.WarnCF("registry", "Policy fetch failed, serving stale cache", map[string]any{
				"direction": string(dir),
				"error":     err.Error(),
			})
			return entry.policies, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[dir] = &cacheEntry{policies: fetched, fetchedAt: c.now()}
	c.mu.Unlock()
	return fetched, nil
}

// Invalidate drops all cached entries.
func (c *PolicyCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[policy.Direction]*cacheEntry)
}

// StartRefresh schedules proactive refreshes of both directions on a cron
// schedule, so the first message after a quiet period does not pay the fetch
// latency. Returns an error for an invalid expression; the loop itself stops
// with the context.
func (c *PolicyCache) StartRefresh(ctx context.Context, schedule string) error {
	if !gronx.New().IsValid(schedule) {
		return fmt.Errorf("invalid refresh schedule %q", schedule)
	}

	go func() {
		for {
			next, err := gronx.NextTick(schedule, false)
			if err != nil {
				logger.ErrorCF("registry", "Refresh schedule error", map[string]any{
					"schedule": schedule,
					"error":    err.Error(),
				})
				return
			}
			select {
			case <-time.After(time.Until(next)):
			case <-ctx.Done():
				return
			}

			c.Invalidate()
			for _, dir := range []policy.Direction{policy.DirectionInbound, policy.DirectionOutbound} {
				if _, err := c.Policies(ctx, dir); err != nil {
					logger.WarnCF("registry", "Scheduled policy refresh failed", map[string]any{
						"direction": string(dir),
						"error":     err.Error(),
					})
				}
			}
		}
	}()

	return nil
}
