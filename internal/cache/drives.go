package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const DefaultDriveTTL = 30 * time.Minute

type driveEntry struct {
	minutes    int
	computedAt time.Time
}

// DriveTimeCache remembers computed travel durations keyed by destination
// address. Keys are the raw address string with surrounding whitespace
// trimmed; no further normalization, so two differently spelled addresses
// stay distinct.
type DriveTimeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]driveEntry
	now     func() time.Time
}

func NewDriveTimeCache(ttl time.Duration) *DriveTimeCache {
	if ttl <= 0 {
		ttl = DefaultDriveTTL
	}
	return &DriveTimeCache{
		ttl:     ttl,
		entries: map[string]driveEntry{},
		now:     time.Now,
	}
}

// ComputeFunc resolves a destination address to driving minutes. It is the
// routing collaborator boundary; any failure means "unavailable".
type ComputeFunc func(ctx context.Context, address string) (int, error)

// GetOrCompute returns the cached minutes for address if an unexpired entry
// exists, otherwise invokes compute. A successful computation is stored; a
// failed one is not cached and returns ok=false so the caller degrades just
// that one event.
func (c *DriveTimeCache) GetOrCompute(ctx context.Context, address string, compute ComputeFunc) (minutes int, ok bool) {
	key := strings.TrimSpace(address)
	if key == "" {
		return 0, false
	}

	c.mu.Lock()
	if e, hit := c.entries[key]; hit && c.now().Sub(e.computedAt) <= c.ttl {
		c.mu.Unlock()
		return e.minutes, true
	}
	c.mu.Unlock()

	// Compute outside the lock; the engine resolves addresses from a single
	// logical flow, so a duplicate computation here would only ever be a
	// harmless refresh.
	m, err := compute(ctx, key)
	if err != nil {
		return 0, false
	}

	c.mu.Lock()
	c.entries[key] = driveEntry{minutes: m, computedAt: c.now()}
	c.mu.Unlock()
	return m, true
}

// InvalidateAll clears every entry.
func (c *DriveTimeCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]driveEntry{}
}

// Sweep drops expired entries.
func (c *DriveTimeCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.computedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}
