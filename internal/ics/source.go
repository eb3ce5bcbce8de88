package ics

import (
	"context"
	"errors"
	"time"

	appLog "leavetimed/internal/log"
	"leavetimed/internal/model"
)

// Calendar is the calendar-fetch collaborator: it fans a date-range request
// over every subscribed ICS source and returns the merged, recurrence-
// expanded event instances.
type Calendar struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewCalendar builds a Calendar over the given sources. loc is the display
// timezone; nil means time.Local.
func NewCalendar(fetcher *Fetcher, sources []Source, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{fetcher: fetcher, sources: sources, loc: loc}
}

// FetchEvents implements the engine's CalendarSource. A failing source is
// skipped (its events simply go missing this round); the call errors only
// when every source failed, since then there is nothing authoritative to
// process.
func (c *Calendar) FetchEvents(ctx context.Context, start, end time.Time) ([]model.RawEvent, error) {
	results, errs := c.fetcher.FetchAll(ctx, c.sources)
	if len(results) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var parsed []ParsedEvent
	for _, res := range results {
		events, err := ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Error("ics source skipped", err, "id", res.Source.ID)
			continue
		}
		parsed = append(parsed, events...)
	}

	return ExpandOccurrences(parsed, ExpandConfig{
		DisplayLocation: c.loc,
		RangeStart:      start,
		RangeEnd:        end,
	})
}
