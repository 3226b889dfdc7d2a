package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository/memory"
	callsvc "github.com/acme/lead-engagement/internal/service/call"
	"github.com/acme/lead-engagement/internal/telephony"
	"github.com/acme/lead-engagement/internal/telephony/mock"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// Wednesday 2026-10-14 11:30 UTC.
var now = time.Date(2026, 10, 14, 11, 30, 20, 0, time.UTC)

type fixture struct {
	leads     *memory.LeadRepository
	schedules *memory.JobScheduleRepository
	provider  *mock.Provider
	clock     *clock.Manual
	calls     *callsvc.Service
	d         *Dispatcher

	mu     sync.Mutex
	events []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		leads:     memory.NewLeadRepository(),
		schedules: memory.NewJobScheduleRepository(),
		provider:  mock.NewProvider(),
		clock:     clock.NewManual(now),
	}
	f.leads.OnClaim = func(id uuid.UUID) { f.record("claim:" + id.String()) }
	f.provider.OnPlace = func(req telephony.CallRequest) { f.record("call:" + req.Metadata.LeadID.String()) }

	_ = f.schedules.EnsureDefaults(context.Background(), domain.DefaultJobSchedules())

	f.calls = callsvc.NewService(f.leads, memory.NewCallStore(), f.provider, nil,
		callsvc.Config{FromNumber: "+15005550006", DefaultRegion: "US"}, f.clock, logger.Nop())
	f.d = New(f.leads, f.schedules, f.calls, f.provider,
		Config{MaxBatchSize: 10, Prompts: map[string]string{"initial": "introduce the offer"}},
		f.clock, logger.Nop())
	return f
}

func (f *fixture) record(event string) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fixture) openWindow(jobType domain.JobType) {
	_ = f.schedules.Upsert(context.Background(), &domain.JobSchedule{
		JobType:   jobType,
		Enabled:   true,
		StartTime: tod("09:00"),
		EndTime:   tod("17:00"),
	})
}

func (f *fixture) addLead(phone string, mutate func(*domain.Lead)) domain.Lead {
	lead := domain.Lead{ID: uuid.New(), Phone: phone, Status: domain.LeadStatusNew, CreatedAt: now}
	if mutate != nil {
		mutate(&lead)
	}
	f.leads.Put(lead)
	return lead
}

func (f *fixture) status(t *testing.T, id uuid.UUID) domain.LeadStatus {
	t.Helper()
	lead, err := f.leads.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	return lead.Status
}

func TestRunBatchClaimsBeforeCalling(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	a := f.addLead("+12015550101", nil)
	b := f.addLead("+12015550102", nil)

	summary, err := f.d.RunBatch(context.Background(), domain.JobTypeInitial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Placed != 2 {
		t.Fatalf("expected 2 placed, got %+v", summary)
	}

	for _, lead := range []domain.Lead{a, b} {
		claim, call := -1, -1
		for i, e := range f.events {
			switch e {
			case "claim:" + lead.ID.String():
				claim = i
			case "call:" + lead.ID.String():
				call = i
			}
		}
		if claim < 0 || call < 0 || claim > call {
			t.Fatalf("lead %s: claim at %d, call at %d", lead.ID, claim, call)
		}
		if f.status(t, lead.ID) != domain.LeadStatusCalling {
			t.Fatalf("lead %s should hold the calling lock", lead.ID)
		}
	}
	if f.provider.Prompt(domain.JobTypeInitial) != "introduce the offer" {
		t.Fatalf("prompt not pushed before the batch")
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	good := f.addLead("+12015550101", nil)
	rejected := f.addLead("+12015550102", func(l *domain.Lead) { l.CreatedAt = now.Add(time.Second) })
	flaky := f.addLead("+12015550103", func(l *domain.Lead) { l.CreatedAt = now.Add(2 * time.Second) })
	last := f.addLead("+12015550104", func(l *domain.Lead) { l.CreatedAt = now.Add(3 * time.Second) })

	f.provider.FailFor(rejected.Phone, apperrors.ErrPermanent)
	f.provider.FailFor(flaky.Phone, apperrors.ErrTransient)

	summary, err := f.d.RunBatch(context.Background(), domain.JobTypeInitial)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Placed != 2 || summary.Failed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if f.status(t, rejected.ID) != domain.LeadStatusError {
		t.Fatalf("permanent failure should flag the lead")
	}
	if f.status(t, flaky.ID) != domain.LeadStatusNew {
		t.Fatalf("transient failure should release to the pre-claim status")
	}
	if f.status(t, good.ID) != domain.LeadStatusCalling || f.status(t, last.ID) != domain.LeadStatusCalling {
		t.Fatalf("other leads should still be called")
	}
}

func TestRunBatchRespectsScheduleAndLimit(t *testing.T) {
	f := newFixture(t)
	f.addLead("+12015550101", nil)
	f.addLead("+12015550102", nil)

	if s, _ := f.d.RunBatch(context.Background(), domain.JobTypeInitial); s.Selected != 0 {
		t.Fatalf("disabled schedule must not select leads")
	}

	_ = f.schedules.Upsert(context.Background(), &domain.JobSchedule{
		JobType: domain.JobTypeInitial, Enabled: true, StartTime: tod("13:00"), EndTime: tod("15:00"),
	})
	if s, _ := f.d.RunBatch(context.Background(), domain.JobTypeInitial); s.Selected != 0 {
		t.Fatalf("closed window must not select leads")
	}

	_ = f.schedules.Upsert(context.Background(), &domain.JobSchedule{
		JobType: domain.JobTypeInitial, Enabled: true, StartTime: tod("09:00"), EndTime: tod("17:00"), CallLimit: 1,
	})
	if s, _ := f.d.RunBatch(context.Background(), domain.JobTypeInitial); s.Selected != 1 || s.Placed != 1 {
		t.Fatalf("call limit not applied: %+v", s)
	}
}

func TestRunIndividualCallsDueCallbacks(t *testing.T) {
	f := newFixture(t)
	dueAt := now.Truncate(time.Minute)
	later := now.Add(time.Hour)
	due := f.addLead("+12015550101", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.Contacted = true
		l.ScheduledCallbackDate = &dueAt
	})
	notYet := f.addLead("+12015550102", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.ScheduledCallbackDate = &later
	})

	summary, err := f.d.RunIndividual(context.Background())
	if err != nil || summary.Placed != 1 {
		t.Fatalf("unexpected result %+v err=%v", summary, err)
	}

	got, _ := f.leads.Get(context.Background(), due.ID)
	if got.ScheduledCallbackDate != nil || got.Status != domain.LeadStatusCalling {
		t.Fatalf("due lead should be claimed with its callback cleared: %+v", got)
	}
	calls := f.provider.Calls()
	if len(calls) != 1 || calls[0].Metadata.JobType != domain.JobTypeReschedule {
		t.Fatalf("expected one reschedule call, got %+v", calls)
	}
	if f.status(t, notYet.ID) != domain.LeadStatusScheduled {
		t.Fatalf("future callback must be left alone")
	}
}

func TestTickRunsWindowBatchesOnly(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	dueAt := now.Truncate(time.Minute)
	f.addLead("+12015550101", nil)
	callback := f.addLead("+12015550102", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.Contacted = true
		l.ScheduledCallbackDate = &dueAt
	})

	if err := f.d.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.provider.Calls()); n != 1 {
		t.Fatalf("expected 1 call, got %d", n)
	}
	if f.status(t, callback.ID) != domain.LeadStatusScheduled {
		t.Fatalf("callbacks belong to the individual pass")
	}
}

func TestRunIndividualPicksUpCallbacksMissedDuringSlowBatch(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	for _, phone := range []string{"+12015550101", "+12015550102", "+12015550103"} {
		f.addLead(phone, nil)
	}
	dueAt := now.Truncate(time.Minute).Add(time.Minute)
	callback := f.addLead("+12015550104", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.Contacted = true
		l.ScheduledCallbackDate = &dueAt
	})
	f.provider.OnPlace = func(telephony.CallRequest) { f.clock.Advance(40 * time.Second) }

	if _, err := f.d.RunIndividual(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.d.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The batch ran past the callback minute.
	if got := f.clock.Now(); !got.After(dueAt.Add(time.Minute)) {
		t.Fatalf("batch should have outlasted the callback minute, clock at %v", got)
	}

	summary, err := f.d.RunIndividual(context.Background())
	if err != nil || summary.Placed != 1 {
		t.Fatalf("overdue callback should be dialled: %+v err=%v", summary, err)
	}
	got, _ := f.leads.Get(context.Background(), callback.ID)
	if got.Status != domain.LeadStatusCalling || got.ScheduledCallbackDate != nil {
		t.Fatalf("callback lead left stranded: %+v", got)
	}
}

func TestRunIndividualHonoursLookBehind(t *testing.T) {
	f := newFixture(t)
	f.d.cfg.CallbackLookBehind = 10 * time.Minute
	stale := now.Add(-time.Hour)
	recent := now.Add(-5 * time.Minute)
	old := f.addLead("+12015550101", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.ScheduledCallbackDate = &stale
	})
	f.addLead("+12015550102", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.ScheduledCallbackDate = &recent
	})

	summary, err := f.d.RunIndividual(context.Background())
	if err != nil || summary.Placed != 1 {
		t.Fatalf("unexpected result %+v err=%v", summary, err)
	}
	if f.status(t, old.ID) != domain.LeadStatusScheduled {
		t.Fatalf("callback older than the look-behind must be left alone")
	}
}

func TestRunKeepsCallbacksFlowingDuringLongBatch(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	batchLead := f.addLead("+12015550101", nil)

	started := make(chan struct{})
	release := make(chan struct{})
	dialled := make(chan uuid.UUID, 4)
	f.provider.OnPlace = func(req telephony.CallRequest) {
		if req.Metadata.LeadID == batchLead.ID {
			close(started)
			<-release
		}
		dialled <- req.Metadata.LeadID
	}
	d := New(f.leads, f.schedules, f.calls, f.provider,
		Config{TickInterval: 5 * time.Millisecond, MaxBatchSize: 10}, f.clock, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("batch never started")
	}
	dueAt := now.Truncate(time.Minute)
	callback := f.addLead("+12015550102", func(l *domain.Lead) {
		l.Status = domain.LeadStatusScheduled
		l.Contacted = true
		l.ScheduledCallbackDate = &dueAt
	})

	select {
	case id := <-dialled:
		if id != callback.ID {
			t.Fatalf("expected the callback to be dialled first, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("callback was not dialled while the batch was running")
	}

	close(release)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}

func TestRunScheduledBatchSkipsWindowMode(t *testing.T) {
	f := newFixture(t)
	f.openWindow(domain.JobTypeInitial)
	f.addLead("+12015550101", nil)

	if err := f.d.RunScheduledBatch(context.Background(), domain.JobTypeInitial); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.provider.Calls()); n != 0 {
		t.Fatalf("window-mode batches belong to the tick, got %d calls", n)
	}

	_ = f.schedules.Upsert(context.Background(), &domain.JobSchedule{
		JobType: domain.JobTypeInitial, Enabled: true, StartTime: tod("11:30"),
	})
	if err := f.d.RunScheduledBatch(context.Background(), domain.JobTypeInitial); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(f.provider.Calls()); n != 1 {
		t.Fatalf("start-time batch should run, got %d calls", n)
	}
}

func TestCallNow(t *testing.T) {
	f := newFixture(t)
	lead := f.addLead("+12015550101", nil)

	record, err := f.d.CallNow(context.Background(), lead.ID, domain.JobTypeInitial)
	if err != nil || record == nil {
		t.Fatalf("unexpected result %v %v", record, err)
	}

	_, err = f.d.CallNow(context.Background(), lead.ID, domain.JobTypeInitial)
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("second call while calling should conflict, got %v", err)
	}

	if _, err := f.d.CallNow(context.Background(), uuid.New(), domain.JobTypeInitial); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
