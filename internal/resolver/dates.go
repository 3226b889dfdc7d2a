package resolver

import (
	"time"

	"github.com/acme/lead-engagement/internal/domain"
)

// busyDate is now + BusyOffsetDays at the reschedule start time, off weekends.
func busyDate(p Params, now time.Time) time.Time {
	at := domain.TimeOfDay{Hour: p.FallbackHour}
	if p.RescheduleStart != nil {
		at = *p.RescheduleStart
	}
	return skipWeekend(at.On(now.AddDate(0, 0, p.BusyOffsetDays)))
}

// scheduleDate is midnight of now + days, moved to at when given. A result that is not
// after now becomes the start of the next minute.
func scheduleDate(now time.Time, days int, at *domain.TimeOfDay) time.Time {
	date := time.Date(now.Year(), now.Month(), now.Day()+days, 0, 0, 0, 0, now.Location())
	if at != nil {
		date = at.On(date)
	}
	if !date.After(now) {
		return now.Truncate(time.Minute).Add(time.Minute)
	}
	return date
}

// fallbackDate is the next business day at FallbackHour, or RescheduleOffsetDays out
// at the reschedule start time when one is configured.
func fallbackDate(p Params, now time.Time) time.Time {
	if p.RescheduleStart != nil {
		return skipWeekend(p.RescheduleStart.On(now.AddDate(0, 0, p.RescheduleOffsetDays)))
	}
	next := domain.TimeOfDay{Hour: p.FallbackHour}.On(now.AddDate(0, 0, 1))
	return skipWeekend(next)
}

func skipWeekend(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, 2)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}
