// Package followup keeps one durable timer per job type that starts the job's batch
// at its configured start time.
package followup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// TimerRegistry arms and disarms one-shot timers.
type TimerRegistry interface {
	// Register arms a timer for jobType at at and returns its id.
	Register(ctx context.Context, jobType domain.JobType, at time.Time) (string, error)
	// Deregister disarms timerID. Unknown ids are not an error.
	Deregister(ctx context.Context, timerID string) error
}

// BatchRunner runs a job type's batch when its timer fires.
type BatchRunner interface {
	RunScheduledBatch(ctx context.Context, jobType domain.JobType) error
}

// JobScheduleInput is the editable part of a JobSchedule.
type JobScheduleInput struct {
	Enabled      bool     `json:"enabled"`
	StartTime    string   `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime      string   `json:"endTime" validate:"omitempty,datetime=15:04"`
	SelectedDays []string `json:"selectedDays" validate:"max=7,dive,required"`
	CallLimit    int      `json:"callLimit" validate:"gte=0,lte=10000"`
}

// Scheduler owns the job schedules and their timers.
type Scheduler struct {
	mu        sync.Mutex
	schedules repository.JobScheduleRepository
	timers    TimerRegistry
	runner    BatchRunner
	validate  *validator.Validate
	location  *time.Location
	clock     clock.Clock
	logger    *logger.Logger
}

// New constructs a Scheduler.
func New(
	schedules repository.JobScheduleRepository,
	timers TimerRegistry,
	runner BatchRunner,
	location *time.Location,
	clk clock.Clock,
	log *logger.Logger,
) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Scheduler{
		schedules: schedules,
		timers:    timers,
		runner:    runner,
		validate:  validator.New(),
		location:  location,
		clock:     clk,
		logger:    log,
	}
}

// SetRunner attaches the batch runner after construction.
func (s *Scheduler) SetRunner(runner BatchRunner) {
	s.mu.Lock()
	s.runner = runner
	s.mu.Unlock()
}

// UpsertJobSchedule replaces the settings of jobType. The previous timer is disarmed
// before the new settings are stored, and a new one is armed when the schedule is
// enabled with a start time and no end time.
func (s *Scheduler) UpsertJobSchedule(ctx context.Context, jobType domain.JobType, in JobScheduleInput) (*domain.JobSchedule, error) {
	schedule, err := s.build(jobType, in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.schedules.Get(ctx, jobType)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("followup: load schedule: %w", err)
	case current.TimerID != "":
		if err := s.timers.Deregister(ctx, current.TimerID); err != nil {
			return nil, fmt.Errorf("followup: deregister timer: %w", err)
		}
	}

	if err := s.schedules.Upsert(ctx, schedule); err != nil {
		return nil, fmt.Errorf("followup: persist schedule: %w", err)
	}
	if err := s.arm(ctx, schedule); err != nil {
		return nil, err
	}

	s.logger.Info("job schedule updated",
		zap.String("job_type", string(jobType)),
		zap.Bool("enabled", schedule.Enabled),
		zap.String("timer_id", schedule.TimerID))
	return schedule, nil
}

// Restore creates missing default schedules and re-arms every enabled timer.
func (s *Scheduler) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.schedules.EnsureDefaults(ctx, domain.DefaultJobSchedules()); err != nil {
		return fmt.Errorf("followup: ensure defaults: %w", err)
	}
	all, err := s.schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("followup: list schedules: %w", err)
	}

	for i := range all {
		schedule := &all[i]
		if schedule.TimerID != "" {
			if err := s.timers.Deregister(ctx, schedule.TimerID); err != nil {
				return fmt.Errorf("followup: deregister %s: %w", schedule.JobType, err)
			}
			schedule.TimerID = ""
			if err := s.schedules.Upsert(ctx, schedule); err != nil {
				return fmt.Errorf("followup: clear timer %s: %w", schedule.JobType, err)
			}
		}
		if err := s.arm(ctx, schedule); err != nil {
			return err
		}
	}
	return nil
}

// Fire handles an expired timer. Stale timers are ignored; the active one re-arms
// for its next occurrence and then runs the batch.
func (s *Scheduler) Fire(ctx context.Context, jobType domain.JobType, timerID string) error {
	log := s.logger.With(zap.String("job_type", string(jobType)), zap.String("timer_id", timerID))

	runner, active, err := s.rearm(ctx, jobType, timerID)
	if err != nil {
		return err
	}
	if !active {
		log.Debug("stale timer ignored")
		return nil
	}
	if runner == nil {
		log.Warn("timer fired without a batch runner")
		return nil
	}

	if err := runner.RunScheduledBatch(ctx, jobType); err != nil {
		log.Error("scheduled batch failed", zap.Error(err))
	}
	return nil
}

func (s *Scheduler) rearm(ctx context.Context, jobType domain.JobType, timerID string) (BatchRunner, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.schedules.Get(ctx, jobType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("followup: load schedule: %w", err)
	}
	if timerID == "" || schedule.TimerID != timerID || !schedule.TimerDriven() {
		return nil, false, nil
	}

	next := NextOccurrence(s.clock.Now(), *schedule.StartTime, schedule.SelectedDays, s.location)
	nextID, err := s.timers.Register(ctx, jobType, next)
	if err != nil {
		return nil, false, fmt.Errorf("followup: re-arm: %w", err)
	}
	swapped, err := s.schedules.SwapTimerID(ctx, jobType, timerID, nextID)
	if err != nil || !swapped {
		// another process replaced the timer first
		if derr := s.timers.Deregister(ctx, nextID); derr != nil {
			s.logger.Warn("failed to drop unused timer", zap.String("timer_id", nextID), zap.Error(derr))
		}
		if err != nil {
			return nil, false, fmt.Errorf("followup: swap timer: %w", err)
		}
		return nil, false, nil
	}
	return s.runner, true, nil
}

// arm registers the timer of an enabled start-time schedule and stores its id. Window
// schedules get no timer.
func (s *Scheduler) arm(ctx context.Context, schedule *domain.JobSchedule) error {
	if !schedule.TimerDriven() {
		return nil
	}
	at := NextOccurrence(s.clock.Now(), *schedule.StartTime, schedule.SelectedDays, s.location)
	id, err := s.timers.Register(ctx, schedule.JobType, at)
	if err != nil {
		return fmt.Errorf("followup: register timer: %w", err)
	}
	swapped, err := s.schedules.SwapTimerID(ctx, schedule.JobType, schedule.TimerID, id)
	if err != nil || !swapped {
		_ = s.timers.Deregister(ctx, id)
		if err == nil {
			err = apperrors.ErrConflict
		}
		return fmt.Errorf("followup: store timer id: %w", err)
	}
	schedule.TimerID = id
	s.logger.Debug("timer armed", zap.String("job_type", string(schedule.JobType)), zap.Time("at", at))
	return nil
}

func (s *Scheduler) build(jobType domain.JobType, in JobScheduleInput) (*domain.JobSchedule, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", apperrors.ErrValidation, jobType)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	schedule := &domain.JobSchedule{JobType: jobType, Enabled: in.Enabled, CallLimit: in.CallLimit}
	if in.StartTime != "" {
		t, err := domain.ParseTimeOfDay(in.StartTime)
		if err != nil {
			return nil, fmt.Errorf("%w: start time: %v", apperrors.ErrValidation, err)
		}
		schedule.StartTime = &t
	}
	if in.EndTime != "" {
		t, err := domain.ParseTimeOfDay(in.EndTime)
		if err != nil {
			return nil, fmt.Errorf("%w: end time: %v", apperrors.ErrValidation, err)
		}
		schedule.EndTime = &t
	}
	seen := make(map[time.Weekday]bool)
	for _, name := range in.SelectedDays {
		d, err := domain.ParseWeekday(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		if !seen[d] {
			seen[d] = true
			schedule.SelectedDays = append(schedule.SelectedDays, d)
		}
	}
	if schedule.Enabled && schedule.StartTime == nil && schedule.EndTime == nil {
		return nil, fmt.Errorf("%w: an enabled schedule needs a start or end time", apperrors.ErrValidation)
	}
	return schedule, nil
}

// NextOccurrence returns the first instant strictly after now at the wall-clock time at
// in loc, on one of days (any day when empty).
func NextOccurrence(now time.Time, at domain.TimeOfDay, days []time.Weekday, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	filter := domain.JobSchedule{SelectedDays: days}

	candidate := at.On(local)
	if !candidate.After(local) {
		candidate = at.On(local.AddDate(0, 0, 1))
	}
	for i := 0; i < 7 && !filter.RunsOn(candidate.Weekday()); i++ {
		candidate = at.On(candidate.AddDate(0, 0, 1))
	}
	return candidate
}
