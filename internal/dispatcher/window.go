package dispatcher

import (
	"time"

	"github.com/acme/lead-engagement/internal/domain"
)

// startTolerance is how far from StartTime a start-only schedule still counts as open.
const startTolerance = time.Minute

// WindowOpen reports whether schedule allows a batch at now. now must already be in
// the configured location.
//
// With an EndTime the window is [StartTime, EndTime] (StartTime defaults to 00:00) and
// may span midnight. With only a StartTime it is open within a minute of it. With
// neither it is closed.
func WindowOpen(schedule domain.JobSchedule, now time.Time) bool {
	minute := now.Hour()*60 + now.Minute()

	switch {
	case schedule.EndTime != nil:
		start := 0
		if schedule.StartTime != nil {
			start = schedule.StartTime.Minutes()
		}
		end := schedule.EndTime.Minutes()

		if end < start {
			// spans midnight: the late part belongs to the selected day, the early part to the day after
			if minute >= start {
				return schedule.RunsOn(now.Weekday())
			}
			if minute <= end {
				return schedule.RunsOn(now.AddDate(0, 0, -1).Weekday())
			}
			return false
		}
		return minute >= start && minute <= end && schedule.RunsOn(now.Weekday())

	case schedule.StartTime != nil:
		at := schedule.StartTime.On(now)
		diff := now.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		return diff <= startTolerance && schedule.RunsOn(now.Weekday())
	}
	return false
}
