package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository/memory"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// Wednesday 2026-10-14 08:00 UTC.
var now = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

type fakeTimers struct {
	mu     sync.Mutex
	seq    int
	active map[string]time.Time
	owner  map[string]domain.JobType
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{active: make(map[string]time.Time), owner: make(map[string]domain.JobType)}
}

func (f *fakeTimers) Register(_ context.Context, jobType domain.JobType, at time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := fmt.Sprintf("timer-%d", f.seq)
	f.active[id] = at
	f.owner[id] = jobType
	return id, nil
}

func (f *fakeTimers) Deregister(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
	delete(f.owner, id)
	return nil
}

func (f *fakeTimers) activeFor(jobType domain.JobType) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, jt := range f.owner {
		if jt == jobType {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeRunner struct {
	runs []domain.JobType
}

func (r *fakeRunner) RunScheduledBatch(_ context.Context, jobType domain.JobType) error {
	r.runs = append(r.runs, jobType)
	return nil
}

func newScheduler() (*Scheduler, *memory.JobScheduleRepository, *fakeTimers, *fakeRunner, *clock.Manual) {
	repo := memory.NewJobScheduleRepository()
	timers := newFakeTimers()
	runner := &fakeRunner{}
	clk := clock.NewManual(now)
	return New(repo, timers, runner, time.UTC, clk, logger.Nop()), repo, timers, runner, clk
}

func TestUpsertKeepsOneTimerPerJobType(t *testing.T) {
	s, repo, timers, _, _ := newScheduler()
	ctx := context.Background()

	for _, start := range []string{"09:00", "10:30", "11:45"} {
		if _, err := s.UpsertJobSchedule(ctx, domain.JobTypeInitial, JobScheduleInput{Enabled: true, StartTime: start}); err != nil {
			t.Fatalf("upsert %s: %v", start, err)
		}
	}

	ids := timers.activeFor(domain.JobTypeInitial)
	if len(ids) != 1 {
		t.Fatalf("expected exactly one timer, got %v", ids)
	}
	stored, _ := repo.Get(ctx, domain.JobTypeInitial)
	if stored.TimerID != ids[0] {
		t.Fatalf("stored timer %q does not match active %q", stored.TimerID, ids[0])
	}
	if at := timers.active[ids[0]]; !at.Equal(time.Date(2026, 10, 14, 11, 45, 0, 0, time.UTC)) {
		t.Fatalf("unexpected fire time %v", at)
	}
}

func TestUpsertDisableRemovesTimer(t *testing.T) {
	s, repo, timers, _, _ := newScheduler()
	ctx := context.Background()

	if _, err := s.UpsertJobSchedule(ctx, domain.JobTypeReminder, JobScheduleInput{Enabled: true, StartTime: "09:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertJobSchedule(ctx, domain.JobTypeReminder, JobScheduleInput{Enabled: false, StartTime: "09:00"}); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if ids := timers.activeFor(domain.JobTypeReminder); len(ids) != 0 {
		t.Fatalf("disabled schedule should have no timer, got %v", ids)
	}
	stored, _ := repo.Get(ctx, domain.JobTypeReminder)
	if stored.TimerID != "" || stored.Enabled {
		t.Fatalf("unexpected stored schedule %+v", stored)
	}
}

func TestUpsertWindowScheduleHasNoTimer(t *testing.T) {
	s, repo, timers, runner, _ := newScheduler()
	ctx := context.Background()

	if _, err := s.UpsertJobSchedule(ctx, domain.JobTypeInitial, JobScheduleInput{Enabled: true, StartTime: "09:00"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	old, _ := repo.Get(ctx, domain.JobTypeInitial)

	if _, err := s.UpsertJobSchedule(ctx, domain.JobTypeInitial, JobScheduleInput{Enabled: true, StartTime: "09:00", EndTime: "17:00"}); err != nil {
		t.Fatalf("upsert window: %v", err)
	}
	if ids := timers.activeFor(domain.JobTypeInitial); len(ids) != 0 {
		t.Fatalf("window schedule should have no timer, got %v", ids)
	}
	stored, _ := repo.Get(ctx, domain.JobTypeInitial)
	if stored.TimerID != "" {
		t.Fatalf("unexpected timer id %q", stored.TimerID)
	}

	// a timer stored before the switch must neither run nor re-arm
	stored.TimerID = old.TimerID
	_ = repo.Upsert(ctx, stored)
	if err := s.Fire(ctx, domain.JobTypeInitial, old.TimerID); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(runner.runs) != 0 || len(timers.activeFor(domain.JobTypeInitial)) != 0 {
		t.Fatalf("window schedule fired: runs=%v timers=%v", runner.runs, timers.activeFor(domain.JobTypeInitial))
	}
}

func TestUpsertValidation(t *testing.T) {
	s, _, _, _, _ := newScheduler()
	ctx := context.Background()

	cases := []struct {
		jobType domain.JobType
		in      JobScheduleInput
	}{
		{"weekly", JobScheduleInput{}},
		{domain.JobTypeInitial, JobScheduleInput{StartTime: "25:00"}},
		{domain.JobTypeInitial, JobScheduleInput{SelectedDays: []string{"funday"}}},
		{domain.JobTypeInitial, JobScheduleInput{CallLimit: -1}},
		{domain.JobTypeInitial, JobScheduleInput{Enabled: true}},
	}
	for _, tc := range cases {
		if _, err := s.UpsertJobSchedule(ctx, tc.jobType, tc.in); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("%s %+v: expected validation error, got %v", tc.jobType, tc.in, err)
		}
	}
}

func TestFireRunsBatchAndRearms(t *testing.T) {
	s, repo, timers, runner, clk := newScheduler()
	ctx := context.Background()

	schedule, err := s.UpsertJobSchedule(ctx, domain.JobTypeInitial, JobScheduleInput{Enabled: true, StartTime: "09:00"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	first := schedule.TimerID

	clk.Set(time.Date(2026, 10, 14, 9, 0, 1, 0, time.UTC))
	if err := s.Fire(ctx, domain.JobTypeInitial, first); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(runner.runs) != 1 {
		t.Fatalf("expected one batch run, got %d", len(runner.runs))
	}

	stored, _ := repo.Get(ctx, domain.JobTypeInitial)
	if stored.TimerID == first || stored.TimerID == "" {
		t.Fatalf("timer should be re-armed, got %q", stored.TimerID)
	}
	if at := timers.active[stored.TimerID]; !at.Equal(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next fire %v", at)
	}

	// a redelivery of the old timer is stale
	if err := s.Fire(ctx, domain.JobTypeInitial, first); err != nil {
		t.Fatalf("stale fire: %v", err)
	}
	if len(runner.runs) != 1 {
		t.Fatalf("stale timer must not run the batch")
	}
}

func TestRestoreCreatesDefaultsAndRearms(t *testing.T) {
	s, repo, timers, _, _ := newScheduler()
	ctx := context.Background()
	start := domain.MustTimeOfDay("10:00")
	_ = repo.Upsert(ctx, &domain.JobSchedule{JobType: domain.JobTypeReschedule, Enabled: true, StartTime: &start, TimerID: "lost-timer"})

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	all, _ := repo.List(ctx)
	if len(all) != len(domain.JobTypes) {
		t.Fatalf("expected defaults for every job type, got %d", len(all))
	}
	stored, _ := repo.Get(ctx, domain.JobTypeReschedule)
	if stored.TimerID == "" || stored.TimerID == "lost-timer" {
		t.Fatalf("enabled schedule should get a fresh timer, got %q", stored.TimerID)
	}
	if ids := timers.activeFor(domain.JobTypeInitial); len(ids) != 0 {
		t.Fatalf("disabled defaults must not be armed")
	}
}

func TestNextOccurrence(t *testing.T) {
	at := domain.MustTimeOfDay("09:00")

	if got := NextOccurrence(now, at, nil, time.UTC); !got.Equal(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("same day: got %v", got)
	}
	later := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	if got := NextOccurrence(later, at, nil, time.UTC); !got.Equal(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("exactly at start should roll to tomorrow, got %v", got)
	}
	if got := NextOccurrence(now, at, []time.Weekday{time.Monday}, time.UTC); !got.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("selected days: got %v", got)
	}

	loc := time.FixedZone("UTC+2", 2*3600)
	got := NextOccurrence(now, at, nil, loc)
	if !got.Equal(time.Date(2026, 10, 15, 9, 0, 0, 0, loc)) {
		t.Fatalf("location: got %v", got)
	}
}

func TestHandleFire(t *testing.T) {
	s, _, _, runner, clk := newScheduler()
	ctx := context.Background()

	schedule, err := s.UpsertJobSchedule(ctx, domain.JobTypeReschedule, JobScheduleInput{Enabled: true, StartTime: "09:00"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	clk.Set(time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC))

	data, _ := json.Marshal(FirePayload{JobType: string(domain.JobTypeReschedule), TimerID: schedule.TimerID})
	if err := s.HandleFire(ctx, asynq.NewTask(TaskFollowupFire, data)); err != nil {
		t.Fatalf("handle fire: %v", err)
	}
	if len(runner.runs) != 1 || runner.runs[0] != domain.JobTypeReschedule {
		t.Fatalf("unexpected runs %v", runner.runs)
	}

	err = s.HandleFire(ctx, asynq.NewTask(TaskFollowupFire, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}
}
