// Package timeline precomputes the display states of the leave-time
// surface. The surface is woken by its host on its own schedule and cannot
// call back into the engine, so every future transition has to be handed
// over in one shot: an ordered list of (timestamp, state) pairs where the
// consumer renders the state of the largest timestamp <= now and wakes
// itself again at the next entry.
package timeline

import (
	"sort"
	"time"

	"leavetimed/internal/model"
)

type State string

const (
	StateNoData       State = "no_data"
	StateNoUpcoming   State = "no_upcoming"
	StateUpcoming     State = "upcoming"
	StateLeaveNow     State = "leave_now"
	StateEventStarted State = "event_started"
)

// Entry is one precomputed transition. EventID is empty for the no-data
// and no-upcoming states.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
	EventID   string    `json:"event_id,omitempty"`
}

// Result is a full generated timeline plus the recommended moment to
// regenerate it.
type Result struct {
	Entries   []Entry   `json:"entries"`
	NextRegen time.Time `json:"next_regen"`
}

const (
	// DefaultEventLimit bounds how many events ahead the timeline covers.
	DefaultEventLimit = 5
	// DefaultSnapshotValidity is how old the persisted snapshot may be
	// before the surface shows no-data instead of trusting it.
	DefaultSnapshotValidity = 24 * time.Hour

	// regenEpsilon pushes the regeneration hint just past the final
	// transition so the consumer regenerates after it has rendered it.
	regenEpsilon = time.Second
	// idleRegen is the regeneration interval when there is nothing to show.
	idleRegen = time.Hour
)

// Generator emits timelines from a persisted snapshot.
type Generator struct {
	EventLimit       int
	SnapshotValidity time.Duration

	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{
		EventLimit:       DefaultEventLimit,
		SnapshotValidity: DefaultSnapshotValidity,
		now:              time.Now,
	}
}

// Generate builds the timeline for snap. Pass nil when no snapshot exists;
// that and a snapshot older than SnapshotValidity both yield a single
// no-data entry. Nothing is persisted; every call recomputes from scratch.
func (g *Generator) Generate(snap *model.Snapshot) Result {
	now := g.now()

	if snap == nil || snap.Age(now) > g.SnapshotValidity {
		return Result{
			Entries:   []Entry{{Timestamp: now, State: StateNoData}},
			NextRegen: now.Add(idleRegen),
		}
	}

	candidates := g.candidates(snap.Events, now)
	if len(candidates) == 0 {
		return Result{
			Entries:   []Entry{{Timestamp: now, State: StateNoUpcoming}},
			NextRegen: now.Add(idleRegen),
		}
	}

	entries := make([]Entry, 0, len(candidates)*3)
	for _, ev := range candidates {
		entries = append(entries, eventEntries(ev, now)...)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return Result{
		Entries:   entries,
		NextRegen: entries[len(entries)-1].Timestamp.Add(regenEpsilon),
	}
}

// candidates selects the first EventLimit events that have not yet ended,
// in ascending start order. In-progress events stay in: they contribute the
// event-started span and its end-of-event refresh anchor.
func (g *Generator) candidates(events []model.EnrichedEvent, now time.Time) []model.EnrichedEvent {
	limit := g.EventLimit
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	sorted := make([]model.EnrichedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]model.EnrichedEvent, 0, limit)
	for _, ev := range sorted {
		if ev.HasEnded(now) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out
}

// eventEntries emits the fixed transition sequence for one event, keyed off
// its leave-by time relative to now.
func eventEntries(ev model.EnrichedEvent, now time.Time) []Entry {
	if ev.HasStarted(now) {
		// The end timestamp is a refresh anchor: it forces the consumer to
		// recompute once the event closes.
		return []Entry{
			{Timestamp: now, State: StateEventStarted, EventID: ev.ID},
			{Timestamp: ev.End, State: StateEventStarted, EventID: ev.ID},
		}
	}

	leaveBy := ev.LeaveBy()
	switch {
	case leaveBy != nil && leaveBy.After(now):
		return []Entry{
			{Timestamp: now, State: StateUpcoming, EventID: ev.ID},
			{Timestamp: *leaveBy, State: StateLeaveNow, EventID: ev.ID},
			{Timestamp: ev.Start, State: StateEventStarted, EventID: ev.ID},
		}
	case leaveBy != nil:
		return []Entry{
			{Timestamp: now, State: StateLeaveNow, EventID: ev.ID},
			{Timestamp: ev.Start, State: StateEventStarted, EventID: ev.ID},
		}
	default:
		return []Entry{
			{Timestamp: now, State: StateUpcoming, EventID: ev.ID},
			{Timestamp: ev.Start, State: StateEventStarted, EventID: ev.ID},
		}
	}
}
