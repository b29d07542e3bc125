// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package signals

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"

	"github.com/danielhkuo/paco-server/calendar"
	"github.com/danielhkuo/paco-server/metrics"
	"github.com/danielhkuo/paco-server/models"
)

// Pick maps a draw f in [0,1) onto the window, at whole-second resolution.
// A zero-width window always yields its start.
func Pick(window models.DailyWindow, f float64) civil.Time {
	start := calendar.OffsetOfDay(window.StartTime)
	width := calendar.OffsetOfDay(window.EndTime) - start
	if width <= 0 {
		return window.StartTime
	}

	offset := time.Duration(f * float64(width))
	if offset >= width {
		offset = width - 1
	}
	if offset < 0 {
		offset = 0
	}

	at := (start + offset).Truncate(time.Second)
	if at < start {
		at = start
	}
	return calendar.TimeOfDay(at)
}

// Generate yields one prompt instant per active date of rule, each drawn
// independently from src and placed inside window in loc. Every range over
// the sequence walks the dates again with fresh draws.
func Generate(rule models.RecurrenceRule, window models.DailyWindow, loc *time.Location, src RandomSource) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := range calendar.Dates(rule.StartDate, rule.EndDate, rule.Every) {
			if !yield(place(d, window, src.Float64(), loc)) {
				return
			}
		}
	}
}

// place maps draw f onto window on date d in loc. On a day whose window
// spans a DST transition, f is spread over the window's elapsed time
// instead of its wall-clock width, so the instant never falls in the gap.
// A window lying wholly inside a gap collapses to the transition.
func place(d civil.Date, window models.DailyWindow, f float64, loc *time.Location) time.Time {
	wall := calendar.OffsetOfDay(window.EndTime) - calendar.OffsetOfDay(window.StartTime)
	if wall <= 0 {
		return calendar.Resolve(d, window.StartTime, loc)
	}

	start := calendar.Resolve(d, window.StartTime, loc)
	end := calendar.Resolve(d, window.EndTime, loc)
	width := end.Sub(start)
	if width == wall {
		return calendar.At(d, Pick(window, f), loc)
	}
	if width <= 0 {
		return start
	}

	offset := time.Duration(f * float64(width))
	if offset >= width {
		offset = width - 1
	}
	if offset < 0 {
		offset = 0
	}
	at := start.Add(offset).Truncate(time.Second)
	if at.Before(start) {
		at = start
	}
	return at
}

// Generator materializes schedules for subjects.
type Generator struct {
	src RandomSource
}

func NewGenerator(src RandomSource) *Generator {
	return &Generator{src: src}
}

// Materialize produces the concrete signals of schedule for one join,
// tagged with the schedule version that produced them.
func (g *Generator) Materialize(join models.JoinRelation, schedule models.SignalSchedule, version time.Time) []models.MaterializedSignal {
	rule := schedule.Recurrence
	out := make([]models.MaterializedSignal, 0, calendar.Count(rule.StartDate, rule.EndDate, rule.Every))

	for at := range Generate(rule, schedule.Window, join.Location(), g.src) {
		out = append(out, models.MaterializedSignal{
			Subject:         join.Subject,
			ExperimentID:    join.ExperimentID,
			ScheduleVersion: version,
			ScheduledAt:     calendar.Stamp(at),
		})
	}

	metrics.SignalsGenerated.Observe(float64(len(out)))
	return out
}
