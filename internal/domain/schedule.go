package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock "HH:MM" value.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24-hour "HH:MM" value.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MustTimeOfDay parses s and panics on error. Intended for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return tod
}

// String formats as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On returns the instant at this time of day on the calendar date of day, in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, day.Location())
}

// JobSchedule is the process-wide recurring window for one job type.
type JobSchedule struct {
	JobType      JobType
	Enabled      bool
	StartTime    *TimeOfDay
	EndTime      *TimeOfDay
	SelectedDays []time.Weekday
	CallLimit    int
	TimerID      string
	UpdatedAt    time.Time
}

// RunsOn reports whether the schedule allows the given weekday. An empty selection allows every day.
func (s *JobSchedule) RunsOn(day time.Weekday) bool {
	if len(s.SelectedDays) == 0 {
		return true
	}
	for _, d := range s.SelectedDays {
		if d == day {
			return true
		}
	}
	return false
}

// TimerDriven reports whether the schedule's batch is started by a timer at StartTime.
// Schedules with an EndTime are windows checked on every dispatcher tick instead.
func (s *JobSchedule) TimerDriven() bool {
	return s.Enabled && s.StartTime != nil && s.EndTime == nil
}

// DefaultJobSchedules are created on first boot: everything disabled.
func DefaultJobSchedules() []JobSchedule {
	out := make([]JobSchedule, 0, len(JobTypes))
	for _, jt := range JobTypes {
		out = append(out, JobSchedule{JobType: jt})
	}
	return out
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts short or long English day names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}
