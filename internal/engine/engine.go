// Package engine implements the time-to-leave orchestration pipeline: it
// resolves calendar events for the configured horizon, enriches them with
// travel times, persists the result as one atomic snapshot, and drives the
// alert resync and the display-refresh signal.
package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"leavetimed/internal/cache"
	appLog "leavetimed/internal/log"
	"leavetimed/internal/model"
	"leavetimed/internal/notify"
	"leavetimed/internal/store"
)

// CalendarSource supplies raw events for a date range. Called only on an
// event-range cache miss.
type CalendarSource interface {
	FetchEvents(ctx context.Context, start, end time.Time) ([]model.RawEvent, error)
}

// RouteClient computes driving minutes to a destination address. Any
// failure means "unavailable" for exactly that address.
type RouteClient interface {
	TravelMinutes(ctx context.Context, address string) (int, error)
}

// SnapshotStore is the persistence boundary the engine writes through.
type SnapshotStore interface {
	WriteSnapshot(ctx context.Context, events []model.EnrichedEvent) error
	ReadSnapshot(ctx context.Context) (model.Snapshot, error)
	AlertsEnabled(ctx context.Context, def bool) (bool, error)
	BufferMinutes(ctx context.Context, def int) (int, error)
}

// RefreshSignal is the one-way "persisted data changed" notification to the
// display side.
type RefreshSignal interface {
	DataChanged()
}

// SignalFunc adapts a plain function to RefreshSignal.
type SignalFunc func()

func (f SignalFunc) DataChanged() { f() }

// State is the engine's observable processing state. LastError only ever
// carries systemic failures (persistence, alert subsystem); per-address
// travel-time failures never surface here.
type State struct {
	Processing bool      `json:"processing"`
	LastRunID  string    `json:"last_run_id,omitempty"`
	LastRunAt  time.Time `json:"last_run_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// Options wires an Engine.
type Options struct {
	Store  SnapshotStore
	Source CalendarSource
	Router RouteClient
	Alerts *notify.Scheduler
	Signal RefreshSignal

	Ranges *cache.EventRangeCache
	Drives *cache.DriveTimeCache

	// HorizonDays bounds the day-aligned fetch window:
	// [today - 1 day, today + HorizonDays + 1 day).
	HorizonDays int
	// BufferDefault / AlertsDefault seed the stored settings when unset.
	BufferDefault int
	AlertsDefault bool
	// LocationTimeout bounds one travel-time computation.
	LocationTimeout time.Duration
}

type Engine struct {
	store  SnapshotStore
	source CalendarSource
	router RouteClient
	alerts *notify.Scheduler
	signal RefreshSignal

	ranges *cache.EventRangeCache
	drives *cache.DriveTimeCache

	horizonDays     int
	bufferDefault   int
	alertsDefault   bool
	locationTimeout time.Duration

	// busy is the re-entrancy guard: one logical run at a time, a second
	// trigger is dropped, never queued.
	busy atomic.Bool

	stateMu   sync.Mutex
	state     State
	observers []chan State

	now func() time.Time
}

func New(opts Options) *Engine {
	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = 7
	}
	timeout := opts.LocationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ranges := opts.Ranges
	if ranges == nil {
		ranges = cache.NewEventRangeCache(cache.DefaultRangeTTL)
	}
	drives := opts.Drives
	if drives == nil {
		drives = cache.NewDriveTimeCache(cache.DefaultDriveTTL)
	}

	return &Engine{
		store:           opts.Store,
		source:          opts.Source,
		router:          opts.Router,
		alerts:          opts.Alerts,
		signal:          opts.Signal,
		ranges:          ranges,
		drives:          drives,
		horizonDays:     horizon,
		bufferDefault:   opts.BufferDefault,
		alertsDefault:   opts.AlertsDefault,
		locationTimeout: timeout,
		now:             time.Now,
	}
}

// State returns the current processing state.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

// Subscribe returns a channel receiving a State on every transition. The
// channel is buffered; a slow consumer misses intermediate states rather
// than blocking a run.
func (e *Engine) Subscribe() <-chan State {
	ch := make(chan State, 8)
	e.stateMu.Lock()
	e.observers = append(e.observers, ch)
	e.stateMu.Unlock()
	return ch
}

// Refresh resolves the event window (cache or fetch) and runs the full
// pipeline. force drops both caches so everything is recomputed. Returns
// false when a run was already in flight and this trigger was dropped, or
// when the fetch failed.
func (e *Engine) Refresh(ctx context.Context, force bool) bool {
	runID, ok := e.begin()
	if !ok {
		appLog.Debug("refresh dropped, run already in flight")
		return false
	}
	defer e.end()

	// Day-aligned window: the horizon is day-granular, and quantizing the
	// bounds keeps consecutive runs asking for an identical range so the
	// range cache can actually hit within its TTL.
	day := e.now().Truncate(24 * time.Hour)
	rangeStart := day.Add(-24 * time.Hour)
	rangeEnd := day.AddDate(0, 0, e.horizonDays+1)

	if force {
		e.InvalidateCaches()
	}

	events, hit := e.ranges.Query(rangeStart, rangeEnd)
	if !hit {
		fetched, err := e.source.FetchEvents(ctx, rangeStart, rangeEnd)
		if err != nil {
			// Nothing authoritative to process; keep the previous snapshot
			// and surface the fault.
			e.setError("calendar fetch: " + err.Error())
			appLog.Error("calendar fetch failed", err, "run_id", runID)
			return false
		}
		e.ranges.Store(rangeStart, rangeEnd, fetched)
		events = fetched
	}

	appLog.Info("refresh run", "run_id", runID, "events", len(events), "from_cache", hit, "force", force)
	e.pipeline(ctx, runID, events)
	return true
}

// ProcessEvents runs the pipeline over an externally supplied event list.
// force drops both caches as in Refresh. Returns false when dropped by the
// re-entrancy guard. Never returns an
// error: every failure is either degraded per event or recorded in State.
func (e *Engine) ProcessEvents(ctx context.Context, events []model.RawEvent, force bool) bool {
	runID, ok := e.begin()
	if !ok {
		appLog.Debug("process dropped, run already in flight")
		return false
	}
	defer e.end()

	if force {
		e.InvalidateCaches()
	}
	e.pipeline(ctx, runID, events)
	return true
}

// pipeline is the single-flight body shared by Refresh and ProcessEvents.
// Caller holds the busy guard.
func (e *Engine) pipeline(ctx context.Context, runID string, events []model.RawEvent) {
	now := e.now()
	buffer, err := e.store.BufferMinutes(ctx, e.bufferDefault)
	if err != nil {
		e.setError("read buffer setting: " + err.Error())
		appLog.Error("buffer setting read failed", err, "run_id", runID)
		buffer = e.bufferDefault
	}

	enriched := make([]model.EnrichedEvent, 0, len(events))
	for _, raw := range events {
		if raw.End.Before(now) || raw.End.Equal(now) {
			continue
		}

		ev := model.EnrichedEvent{
			ID:            raw.ID,
			Title:         raw.Title,
			Location:      strings.TrimSpace(raw.Location),
			AllDay:        raw.AllDay,
			Start:         raw.Start,
			End:           raw.End,
			BufferMinutes: buffer,
		}

		// Travel time only for future, timed, located events. All-day and
		// unlocated events stay in the list without a drive time; one
		// failed lookup degrades one event, never the batch.
		if !raw.AllDay && raw.Start.After(now) && ev.Location != "" {
			if minutes, ok := e.drives.GetOrCompute(ctx, ev.Location, e.computeDrive); ok {
				ev.DriveTimeMinutes = &minutes
			}
		}
		enriched = append(enriched, ev)
	}

	sort.SliceStable(enriched, func(i, j int) bool {
		return enriched[i].Start.Before(enriched[j].Start)
	})

	if err := e.store.WriteSnapshot(ctx, enriched); err != nil {
		// The run still completes; consumers see stale-or-absent data
		// until the next successful write.
		e.setError("persist snapshot: " + err.Error())
		appLog.Error("snapshot write failed", err, "run_id", runID)
	} else {
		e.clearError()
	}

	e.applyAlertToggle(ctx, runID, enriched)

	if e.signal != nil {
		e.signal.DataChanged()
	}

	// Optional cleanup pass; passive read-time expiry is what actually
	// guarantees freshness.
	e.ranges.Sweep()
	e.drives.Sweep()

	appLog.Info("run complete", "run_id", runID, "enriched", len(enriched))
}

// OnSettingsChanged re-derives the enriched list from the last persisted
// snapshot under the current settings, without refetching events or travel
// times, then re-runs alert resync and the refresh signal. Returns false
// when dropped by the re-entrancy guard.
func (e *Engine) OnSettingsChanged(ctx context.Context) bool {
	runID, ok := e.begin()
	if !ok {
		appLog.Debug("settings reprocess dropped, run already in flight")
		return false
	}
	defer e.end()

	snap, err := e.store.ReadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoSnapshot) {
			appLog.Error("snapshot read failed on settings change", err, "run_id", runID)
		}
		// With no snapshot there is nothing to re-derive; still honor a
		// disable by clearing alerts.
		e.applyAlertToggle(ctx, runID, nil)
		return true
	}

	buffer, err := e.store.BufferMinutes(ctx, e.bufferDefault)
	if err != nil {
		e.setError("read buffer setting: " + err.Error())
		appLog.Error("buffer setting read failed", err, "run_id", runID)
		buffer = e.bufferDefault
	}

	events := snap.Events
	for i := range events {
		events[i].BufferMinutes = buffer
	}

	if err := e.store.WriteSnapshot(ctx, events); err != nil {
		e.setError("persist snapshot: " + err.Error())
		appLog.Error("snapshot write failed on settings change", err, "run_id", runID)
	}

	e.applyAlertToggle(ctx, runID, events)

	if e.signal != nil {
		e.signal.DataChanged()
	}
	appLog.Info("settings reprocess complete", "run_id", runID, "buffer_minutes", buffer)
	return true
}

// applyAlertToggle schedules or clears alerts according to the stored
// toggle. events may be nil (nothing to schedule).
func (e *Engine) applyAlertToggle(ctx context.Context, runID string, events []model.EnrichedEvent) {
	if e.alerts == nil {
		return
	}
	enabled, err := e.store.AlertsEnabled(ctx, e.alertsDefault)
	if err != nil {
		e.setError("read alerts setting: " + err.Error())
		appLog.Error("alerts setting read failed", err, "run_id", runID)
		return
	}
	if !enabled {
		if err := e.alerts.CancelAll(); err != nil {
			e.setError("cancel alerts: " + err.Error())
			appLog.Error("alert cancellation failed", err, "run_id", runID)
		}
		return
	}
	if _, err := e.alerts.ScheduleAll(events); err != nil {
		e.setError("resync alerts: " + err.Error())
		appLog.Error("alert resync failed", err, "run_id", runID)
	}
}

// computeDrive is the ComputeFunc handed to the drive-time cache; it wraps
// the router call in the per-location timeout so one slow address cannot
// stall the batch.
func (e *Engine) computeDrive(ctx context.Context, address string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.locationTimeout)
	defer cancel()
	return e.router.TravelMinutes(callCtx, address)
}

// InvalidateCaches clears both caches. Forced runs go through here; callers
// can also use it directly on logout-equivalent events.
func (e *Engine) InvalidateCaches() {
	e.ranges.InvalidateAll()
	e.drives.InvalidateAll()
}

func (e *Engine) begin() (string, bool) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", false
	}
	runID := uuid.NewString()

	e.stateMu.Lock()
	e.state.Processing = true
	e.state.LastRunID = runID
	e.notifyLocked()
	e.stateMu.Unlock()
	return runID, true
}

func (e *Engine) end() {
	e.stateMu.Lock()
	e.state.Processing = false
	e.state.LastRunAt = e.now()
	e.notifyLocked()
	e.stateMu.Unlock()

	e.busy.Store(false)
}

func (e *Engine) setError(msg string) {
	e.stateMu.Lock()
	e.state.LastError = msg
	e.notifyLocked()
	e.stateMu.Unlock()
}

func (e *Engine) clearError() {
	e.stateMu.Lock()
	e.state.LastError = ""
	e.stateMu.Unlock()
}

func (e *Engine) notifyLocked() {
	for _, ch := range e.observers {
		select {
		case ch <- e.state:
		default:
		}
	}
}
