package escalation

import (
	"log"
	"time"

	"github.com/blue-kestrel/shipsentry/internal/models"
)

// effectiveElapsed returns how much escalation delay has accrued
// between from and to. With business hours disabled this is the plain
// wall-clock difference; otherwise only time inside the daily
// [StartHour, EndHour) window in the configured timezone counts.
func effectiveElapsed(from, to time.Time, hours models.BusinessHours) time.Duration {
	if !to.After(from) {
		return 0
	}
	if !hours.Enabled {
		return to.Sub(from)
	}

	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		// An unloadable timezone must not freeze the escalation clock;
		// fall back to wall-clock accrual.
		log.Printf("escalation: load timezone %q: %v, ignoring business hours", hours.Timezone, err)
		return to.Sub(from)
	}

	from = from.In(loc)
	to = to.In(loc)

	var accrued time.Duration
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for day.Before(to) {
		windowStart := day.Add(time.Duration(hours.StartHour) * time.Hour)
		windowEnd := day.Add(time.Duration(hours.EndHour) * time.Hour)

		accrued += overlap(from, to, windowStart, windowEnd)
		day = day.AddDate(0, 0, 1)
	}
	return accrued
}

// overlap returns the length of the intersection of [from, to) and
// [start, end).
func overlap(from, to, start, end time.Time) time.Duration {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}
