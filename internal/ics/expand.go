package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "leavetimed/internal/log"
	"leavetimed/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// DisplayLocation is the timezone occurrences are converted into.
	// Defaults to time.Local.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd bound the inclusive occurrence window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway expansions. Zero means the
	// package default.
	MaxOccurrencesPerEvent int
}

// ExpandOccurrences expands ParsedEvents into concrete model.RawEvent
// instances within the window. Handles single events, RRULE recurrence,
// EXDATE removals, RECURRENCE-ID overrides, and all-day semantics. Event
// IDs are the UID for single events and UID plus instance start for
// recurring ones, so they stay stable and unique across runs.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) ([]model.RawEvent, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	var out []model.RawEvent
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		for _, ev := range baseEvents {
			if ev.RawRRule == "" {
				out = append(out, expandSingle(ev, ov, cfg)...)
				continue
			}
			occ, hitCap := expandRecurring(ev, ov, cfg)
			if hitCap {
				appLog.Error("expand: truncated occurrences", errors.New("max occurrences reached"),
					"uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
			}
			out = append(out, occ...)
		}
	}
	return out, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.RawEvent {
	if !rangesOverlap(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}

	start, end := ev.Start, ev.End
	if o, ok := overrideForStart(overrides, start); ok {
		start, end = o.Start, o.End
		ev = o
	}
	return []model.RawEvent{makeRawEvent(ev, ev.UID, start, end, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())
	occTimes := set.Between(rangeStart, rangeEnd, true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.RawEvent, 0, len(occTimes))
	dur := ev.End.Sub(ev.Start)
	for _, occStart := range occTimes {
		var occEnd time.Time
		if ev.AllDay {
			// All-day: [date 00:00, next day 00:00) in the event's zone.
			occStart = time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occEnd = occStart.Add(24 * time.Hour)
		} else {
			occEnd = occStart.Add(dur)
		}

		instEv, start, end := ev, occStart, occEnd
		if o, ok := overrideForStart(overrides, occStart); ok {
			instEv, start, end = o, o.Start, o.End
		}

		id := ev.UID + "/" + occStart.In(cfg.DisplayLocation).Format(time.RFC3339)
		out = append(out, makeRawEvent(instEv, id, start, end, cfg.DisplayLocation))
	}
	return out, hitCap
}

// overrideForStart finds an override whose RECURRENCE-ID equals baseStart.
func overrideForStart(overrides []ParsedEvent, baseStart time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(baseStart.Location()).Equal(baseStart) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func makeRawEvent(ev ParsedEvent, id string, start, end time.Time, loc *time.Location) model.RawEvent {
	return model.RawEvent{
		ID:        id,
		SourceID:  ev.Source.ID,
		Title:     ev.Summary,
		Location:  ev.Location,
		Attendees: ev.Attendees,
		AllDay:    ev.AllDay,
		Start:     start.In(loc),
		End:       end.In(loc),
	}
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
