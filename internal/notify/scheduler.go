package notify

import (
	"fmt"
	"time"

	appLog "leavetimed/internal/log"
	"leavetimed/internal/model"
)

// IdentifierPrefix namespaces every alert this subsystem registers. Bulk
// cancellation is always prefix-scoped so alerts owned by anything else on
// the notification service are never touched.
const IdentifierPrefix = "leavetimed-"

// Scheduler keeps the notification service's alert set in sync with an
// enriched event list. Resync is cancel-all-then-schedule: identifiers are
// deterministic per event, so running it twice over the same list yields an
// identical schedule.
type Scheduler struct {
	notifier Notifier
	now      func() time.Time
}

func NewScheduler(n Notifier) *Scheduler {
	return &Scheduler{notifier: n, now: time.Now}
}

// Identifier returns the deterministic namespaced alert identifier for an
// event.
func Identifier(eventID string) string {
	return IdentifierPrefix + eventID
}

// ScheduleAll cancels every alert in this subsystem's namespace, then
// schedules one alert per eligible event: leave-by present and in the
// future, event not all-day. Per-event scheduling failures are logged and
// skipped; a cancellation failure aborts, since scheduling on top of an
// unknown alert set could leave orphans.
func (s *Scheduler) ScheduleAll(events []model.EnrichedEvent) (scheduled int, err error) {
	if err := s.notifier.CancelAllWithPrefix(IdentifierPrefix); err != nil {
		return 0, fmt.Errorf("cancel existing alerts: %w", err)
	}

	now := s.now()
	for _, ev := range events {
		if ev.AllDay {
			continue
		}
		leaveBy := ev.LeaveBy()
		if leaveBy == nil || !leaveBy.After(now) {
			continue
		}

		payload := Payload{
			Title:   "Time to leave",
			Body:    leaveBody(ev),
			EventID: ev.ID,
		}
		if serr := s.notifier.Schedule(Identifier(ev.ID), *leaveBy, payload); serr != nil {
			appLog.Error("alert scheduling failed", serr, "event_id", ev.ID, "fire_at", leaveBy)
			continue
		}
		scheduled++
	}

	appLog.Info("alert resync complete", "scheduled", scheduled, "events", len(events))
	return scheduled, nil
}

// Cancel removes the alert for one event.
func (s *Scheduler) Cancel(eventID string) error {
	return s.notifier.Cancel(Identifier(eventID))
}

// CancelAll removes every alert in this subsystem's namespace. Used when
// alerts are disabled in settings.
func (s *Scheduler) CancelAll() error {
	return s.notifier.CancelAllWithPrefix(IdentifierPrefix)
}

func leaveBody(ev model.EnrichedEvent) string {
	if ev.DriveTimeMinutes != nil {
		return fmt.Sprintf("%s starts at %s (%d min drive)",
			ev.Title, ev.Start.Format("15:04"), *ev.DriveTimeMinutes)
	}
	return fmt.Sprintf("%s starts at %s", ev.Title, ev.Start.Format("15:04"))
}
