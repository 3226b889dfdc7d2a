package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/dedup"
	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/interpreter"
	"github.com/acme/lead-engagement/internal/queue"
	"github.com/acme/lead-engagement/internal/repository/memory"
	"github.com/acme/lead-engagement/internal/resolver"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// 2026-10-14 is a Wednesday.
var start = time.Date(2026, 10, 14, 15, 20, 45, 0, time.UTC)

type stubModel struct {
	answer string
	err    error
	calls  int
}

func (m *stubModel) Complete(context.Context, string, string) (string, error) {
	m.calls++
	return m.answer, m.err
}

type countingNotifier struct {
	emails, sms int
}

func (n *countingNotifier) SendVerificationEmail(context.Context, domain.Lead) (bool, error) {
	n.emails++
	return true, nil
}

func (n *countingNotifier) SendVerificationSMS(context.Context, domain.Lead) (bool, error) {
	n.sms++
	return true, nil
}

type fixture struct {
	leads    *memory.LeadRepository
	calls    *memory.CallStore
	model    *stubModel
	notifier *countingNotifier
	clock    *clock.Manual
	handler  *Handler
}

func newFixture() *fixture {
	f := &fixture{
		leads:    memory.NewLeadRepository(),
		calls:    memory.NewCallStore(),
		model:    &stubModel{answer: `{"preferredMethod":"none"}`},
		notifier: &countingNotifier{},
		clock:    clock.NewManual(start),
	}
	f.handler = NewHandler(Deps{
		Leads:       f.leads,
		Calls:       f.calls,
		Schedules:   memory.NewJobScheduleRepository(),
		Events:      dedup.NewMemory(80*time.Second, f.clock),
		Interpreter: interpreter.New(f.model),
		Notifier:    f.notifier,
		Params:      resolver.DefaultParams(),
		Clock:       f.clock,
		Logger:      logger.Nop(),
	})
	return f
}

// claimedLead stores a lead holding the calling lock together with the call placed for it.
// mutate shapes the lead as it was before the claim.
func (f *fixture) claimedLead(jobType domain.JobType, mutate func(*domain.Lead)) domain.Lead {
	lead := domain.Lead{ID: uuid.New(), Phone: "+12015550123", Status: domain.LeadStatusNew, CreatedAt: start}
	if mutate != nil {
		mutate(&lead)
	}
	before := lead.Status
	lead.Status = domain.LeadStatusCalling
	f.leads.Put(lead)
	_ = f.calls.SaveCall(context.Background(), &domain.CallRecord{
		ID: uuid.New(), ExternalCallID: "call_" + lead.ID.String(), LeadID: lead.ID,
		JobType: jobType, LeadStatusBefore: before, Status: domain.CallStatusRegistered,
	})
	f.calls.CallWrites = 0
	return lead
}

func endedEvent(lead domain.Lead, transcript string) queue.CallEvent {
	return queue.CallEvent{
		Event: queue.EventCallEnded,
		Call: queue.CallPayload{
			CallID:     "call_" + lead.ID.String(),
			Metadata:   queue.CallEventMetadata{LeadID: lead.ID.String()},
			Transcript: transcript,
			DurationMs: 42000,
			CallStatus: "ended",
		},
	}
}

func TestHandleDuplicateEventsWithinWindow(t *testing.T) {
	f := newFixture()
	lead := f.claimedLead(domain.JobTypeInitial, nil)
	ctx := context.Background()

	if err := f.handler.Handle(ctx, endedEvent(lead, "user: not now")); err != nil {
		t.Fatalf("first event: %v", err)
	}
	f.clock.Advance(30 * time.Second)
	err := f.handler.Handle(ctx, endedEvent(lead, "user: not now, longer transcript"))
	if !errors.Is(err, apperrors.ErrDuplicateEvent) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	if f.calls.CallWrites != 1 || f.calls.TranscriptWrites != 1 {
		t.Fatalf("expected one mutation each, got calls=%d transcripts=%d", f.calls.CallWrites, f.calls.TranscriptWrites)
	}
	if f.model.calls != 1 {
		t.Fatalf("expected one interpretation, got %d", f.model.calls)
	}
}

func TestHandleNoTranscriptUsesFallback(t *testing.T) {
	f := newFixture()
	lead := f.claimedLead(domain.JobTypeInitial, nil)

	if err := f.handler.Handle(context.Background(), endedEvent(lead, "")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.model.calls != 0 {
		t.Fatalf("interpreter must not run without a transcript")
	}

	got, _ := f.leads.Get(context.Background(), lead.ID)
	want := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	if got.ScheduledCallbackDate == nil || !got.ScheduledCallbackDate.Equal(want) {
		t.Fatalf("expected fallback %v, got %v", want, got.ScheduledCallbackDate)
	}
	if got.Status != domain.LeadStatusScheduled || !got.Contacted {
		t.Fatalf("unexpected lead state %+v", got)
	}

	rec, _ := f.calls.GetCall(context.Background(), "call_"+lead.ID.String())
	if rec.OutcomeAppliedAt == nil || rec.Status != domain.CallStatusEnded || rec.DurationMs != 42000 {
		t.Fatalf("call record not finalised: %+v", rec)
	}
}

func TestHandleInterpreterFailureFallsBack(t *testing.T) {
	f := newFixture()
	f.model.answer = "I could not understand that call"
	lead := f.claimedLead(domain.JobTypeInitial, nil)

	if err := f.handler.Handle(context.Background(), endedEvent(lead, "user: mumble")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.leads.Get(context.Background(), lead.ID)
	if got.ScheduledCallbackDate == nil || got.ScheduledCallbackDate.Hour() != 10 {
		t.Fatalf("expected fallback date, got %v", got.ScheduledCallbackDate)
	}
}

func TestHandleUnknownLead(t *testing.T) {
	f := newFixture()
	evt := endedEvent(domain.Lead{ID: uuid.New()}, "user: hello")
	if err := f.handler.Handle(context.Background(), evt); !errors.Is(err, apperrors.ErrUnknownLead) {
		t.Fatalf("expected unknown lead, got %v", err)
	}
	if f.calls.CallWrites != 0 {
		t.Fatalf("nothing should be written for unknown leads")
	}
}

func TestHandleMissingLeadID(t *testing.T) {
	f := newFixture()
	evt := queue.CallEvent{Event: queue.EventCallEnded, Call: queue.CallPayload{CallID: "call_x"}}
	if err := f.handler.Handle(context.Background(), evt); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleLateEnrichmentDoesNotResolveAgain(t *testing.T) {
	f := newFixture()
	lead := f.claimedLead(domain.JobTypeInitial, nil)
	ctx := context.Background()

	if err := f.handler.Handle(ctx, endedEvent(lead, "user: hi")); err != nil {
		t.Fatalf("first event: %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	analyzed := endedEvent(lead, "user: hi, please email me the link")
	analyzed.Event = queue.EventCallAnalyzed
	if err := f.handler.Handle(ctx, analyzed); err != nil {
		t.Fatalf("late event: %v", err)
	}

	tr, _ := f.calls.GetTranscript(ctx, "call_"+lead.ID.String())
	if tr.Text != "user: hi, please email me the link" {
		t.Fatalf("richer transcript not merged: %q", tr.Text)
	}
	if f.model.calls != 1 {
		t.Fatalf("outcome must not be resolved twice, got %d interpretations", f.model.calls)
	}
}

func TestHandleReminderCallBackInAWeek(t *testing.T) {
	f := newFixture()
	f.model.answer = `{"preferredMethod":"schedule","scheduleDays":7,"resentLink":false,"isBusy":false,"notInterested":false}`
	lead := f.claimedLead(domain.JobTypeReminder, func(l *domain.Lead) {
		l.Status = domain.LeadStatusReminder
		l.Contacted = true
		l.LinkSend = true
	})

	if err := f.handler.Handle(context.Background(), endedEvent(lead, "user: call me back in a week")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := f.leads.Get(context.Background(), lead.ID)
	want := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	if got.ScheduledCallbackDate == nil || !got.ScheduledCallbackDate.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got.ScheduledCallbackDate)
	}
	if got.Status != domain.LeadStatusReminder {
		t.Fatalf("reminder lead should keep its status, got %q", got.Status)
	}
	if f.notifier.emails != 0 || f.notifier.sms != 0 {
		t.Fatalf("no link should be sent, got %d emails %d sms", f.notifier.emails, f.notifier.sms)
	}
}

func TestHandleReminderRestoresPreClaimStatus(t *testing.T) {
	f := newFixture()
	f.model.answer = `{"preferredMethod":"none"}`
	lead := f.claimedLead(domain.JobTypeReminder, func(l *domain.Lead) {
		l.Status = domain.LeadStatusContacted
		l.Contacted = true
		l.LinkSend = true
	})

	if err := f.handler.Handle(context.Background(), endedEvent(lead, "user: not a good time")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.leads.Get(context.Background(), lead.ID)
	if got.Status != domain.LeadStatusContacted {
		t.Fatalf("reminder outcome must leave the status as claimed, got %q", got.Status)
	}
}

func TestHandleLateEventLeavesEndedRecordAlone(t *testing.T) {
	f := newFixture()
	lead := f.claimedLead(domain.JobTypeInitial, nil)
	ctx := context.Background()

	first := endedEvent(lead, "user: hi")
	first.Call.DisconnectionReason = "user_hangup"
	first.Call.EndTimestamp = start.UnixMilli()
	if err := f.handler.Handle(ctx, first); err != nil {
		t.Fatalf("first event: %v", err)
	}
	f.clock.Advance(2 * time.Minute)

	late := endedEvent(lead, "user: hi")
	late.Event = queue.EventCallAnalyzed
	late.Call.CallStatus = "error"
	late.Call.DisconnectionReason = "agent_hangup"
	late.Call.EndTimestamp = start.Add(time.Minute).UnixMilli()
	late.Call.DurationMs = 43000
	late.Call.CallCost = &queue.CallCost{CombinedCost: 0.12}
	if err := f.handler.Handle(ctx, late); err != nil {
		t.Fatalf("late event: %v", err)
	}

	rec, _ := f.calls.GetCall(ctx, first.Call.CallID)
	if rec.Status != domain.CallStatusEnded || rec.DisconnectReason != "user_hangup" {
		t.Fatalf("ended record overwritten: %+v", rec)
	}
	if rec.EndTimestamp == nil || !rec.EndTimestamp.Equal(start) {
		t.Fatalf("end timestamp overwritten: %v", rec.EndTimestamp)
	}
	if rec.DurationMs != 43000 || rec.Cost != 0.12 {
		t.Fatalf("late enrichment not merged: %+v", rec)
	}
}

func TestHandleEmailPreferenceSendsLink(t *testing.T) {
	f := newFixture()
	f.model.answer = `{"preferredMethod":"email","contactInfo":{"email":"new@example.com"}}`
	lead := f.claimedLead(domain.JobTypeInitial, nil)

	if err := f.handler.Handle(context.Background(), endedEvent(lead, "user: email me at new@example.com")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := f.leads.Get(context.Background(), lead.ID)
	if got.Email != "new@example.com" || !got.LinkSend || got.Status != domain.LeadStatusReminder {
		t.Fatalf("unexpected lead %+v", got)
	}
	if f.notifier.emails != 1 || f.notifier.sms != 0 {
		t.Fatalf("expected one email, got %d emails %d sms", f.notifier.emails, f.notifier.sms)
	}
}

func TestHandleCallStartedOnlyMergesRecord(t *testing.T) {
	f := newFixture()
	lead := f.claimedLead(domain.JobTypeInitial, nil)
	evt := endedEvent(lead, "")
	evt.Event = queue.EventCallStarted
	evt.Call.CallStatus = ""

	if err := f.handler.Handle(context.Background(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := f.calls.GetCall(context.Background(), evt.Call.CallID)
	if rec.Status != domain.CallStatusOngoing {
		t.Fatalf("expected ongoing, got %q", rec.Status)
	}
	got, _ := f.leads.Get(context.Background(), lead.ID)
	if got.Status != domain.LeadStatusCalling {
		t.Fatalf("call_started must not release the lock")
	}
}
