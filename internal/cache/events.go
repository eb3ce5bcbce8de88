// Package cache holds the engine's two TTL caches: fetched event ranges and
// computed drive times. Both expire passively at read time; Sweep exists
// only as an optional cleanup pass between runs.
package cache

import (
	"sync"
	"time"

	"leavetimed/internal/model"
)

const DefaultRangeTTL = 60 * time.Minute

type rangeEntry struct {
	start     time.Time
	end       time.Time
	fetchedAt time.Time
	events    []model.RawEvent
}

// EventRangeCache remembers previously fetched event sets keyed by date
// range. A query is satisfied by an exact entry or by any unexpired entry
// whose range fully contains the requested one; in the containing case the
// result is filtered to events starting inside the requested range.
type EventRangeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries []rangeEntry
	now     func() time.Time
}

func NewEventRangeCache(ttl time.Duration) *EventRangeCache {
	if ttl <= 0 {
		ttl = DefaultRangeTTL
	}
	return &EventRangeCache{ttl: ttl, now: time.Now}
}

// Store inserts or overwrites the entry for [start, end] with the current
// timestamp.
func (c *EventRangeCache) Store(start, end time.Time, events []model.RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := make([]model.RawEvent, len(events))
	copy(copied, events)

	for i := range c.entries {
		if c.entries[i].start.Equal(start) && c.entries[i].end.Equal(end) {
			c.entries[i].events = copied
			c.entries[i].fetchedAt = c.now()
			return
		}
	}
	c.entries = append(c.entries, rangeEntry{
		start:     start,
		end:       end,
		fetchedAt: c.now(),
		events:    copied,
	})
}

// Query returns the cached events for [start, end] and true on a hit. A
// miss is a normal outcome, not an error; the caller fetches from the
// calendar source and Stores the result.
func (c *EventRangeCache) Query(start, end time.Time) ([]model.RawEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for i := range c.entries {
		e := &c.entries[i]
		if now.Sub(e.fetchedAt) > c.ttl {
			continue
		}
		if !e.contains(start, end) {
			continue
		}
		if e.start.Equal(start) && e.end.Equal(end) {
			out := make([]model.RawEvent, len(e.events))
			copy(out, e.events)
			return out, true
		}
		// Superset entry: filter to events whose start falls inside the
		// requested range.
		out := make([]model.RawEvent, 0, len(e.events))
		for _, ev := range e.events {
			if ev.Start.Before(start) || ev.Start.After(end) {
				continue
			}
			out = append(out, ev)
		}
		return out, true
	}
	return nil, false
}

// InvalidateAll clears every entry. Used on forced refresh and logout.
func (c *EventRangeCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Sweep drops expired entries. Optional; Query never returns them anyway.
func (c *EventRangeCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if now.Sub(e.fetchedAt) <= c.ttl {
			kept = append(kept, e)
		}
	}
	c.entries = kept
}

func (e *rangeEntry) contains(start, end time.Time) bool {
	return !e.start.After(start) && !e.end.Before(end)
}
