// Package lifecycle consumes call provider events: it merges call records and
// transcripts, releases the calling lock and applies the interpreted outcome.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/crm"
	"github.com/acme/lead-engagement/internal/dedup"
	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/queue"
	"github.com/acme/lead-engagement/internal/repository"
	"github.com/acme/lead-engagement/internal/resolver"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// Interpreter extracts an intent from transcript text.
type Interpreter interface {
	Interpret(ctx context.Context, transcript string) (domain.Intent, error)
}

// Notifier sends verification links.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, lead domain.Lead) (bool, error)
	SendVerificationSMS(ctx context.Context, lead domain.Lead) (bool, error)
}

// Deps groups the handler collaborators.
type Deps struct {
	Leads       repository.LeadRepository
	Calls       repository.CallStore
	Schedules   repository.JobScheduleRepository
	Events      dedup.Cache
	Interpreter Interpreter
	Notifier    Notifier
	CRM         crm.Client
	Params      resolver.Params
	Clock       clock.Clock
	Logger      *logger.Logger
}

// Handler applies call events to leads.
type Handler struct {
	Deps
}

// NewHandler constructs a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.CRM == nil {
		deps.CRM = crm.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Handler{Deps: deps}
}

// Handle processes one event. Returned errors are for logging only: the event is never
// redelivered by the handler. Duplicates return ErrDuplicateEvent, untracked leads
// ErrUnknownLead.
func (h *Handler) Handle(ctx context.Context, evt queue.CallEvent) error {
	tracer := otel.Tracer("leads.lifecycle")
	ctx, span := tracer.Start(ctx, "lifecycle.handle")
	defer span.End()
	span.SetAttributes(attribute.String("event", evt.Event), attribute.String("call.id", evt.Call.CallID))

	log := h.Logger.WithContext(ctx).With(zap.String("event", evt.Event), zap.String("call_id", evt.Call.CallID))

	leadID, ok := evt.LeadID()
	if !ok {
		log.Warn("call event without a usable lead id", zap.String("lead_id", evt.Call.Metadata.LeadID))
		return fmt.Errorf("%w: lifecycle: missing lead id", apperrors.ErrValidation)
	}
	log = log.With(zap.String("lead_id", leadID.String()))
	span.SetAttributes(attribute.String("lead.id", leadID.String()))

	if !evt.IsCompletion() {
		if evt.Event == queue.EventCallStarted && evt.Call.CallID != "" {
			if _, err := h.mergeRecord(ctx, evt, leadID); err != nil {
				log.Error("failed to merge call record", zap.Error(err))
				return err
			}
		}
		return nil
	}

	first, err := h.Events.MarkIfAbsent(ctx, dedup.Key("event", leadID.String()))
	if err != nil {
		span.RecordError(err)
		log.Error("dedup lookup failed", zap.Error(err))
		return fmt.Errorf("lifecycle: dedup: %w", err)
	}
	if !first {
		log.Debug("duplicate completion event ignored")
		return apperrors.ErrDuplicateEvent
	}

	lead, err := h.Leads.Get(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("completion event for unknown lead dropped")
			return apperrors.ErrUnknownLead
		}
		span.RecordError(err)
		log.Error("failed to load lead", zap.Error(err))
		return fmt.Errorf("lifecycle: load lead: %w", err)
	}

	record, err := h.mergeRecord(ctx, evt, leadID)
	if err != nil {
		span.RecordError(err)
		log.Error("failed to merge call record", zap.Error(err))
		return err
	}
	transcript, err := h.mergeTranscript(ctx, evt)
	if err != nil {
		// the outcome can still be resolved from the event itself
		log.Error("failed to merge transcript", zap.Error(err))
		transcript = evt.Transcript()
	}

	if record.OutcomeAppliedAt != nil {
		log.Info("late enrichment merged, outcome already applied")
		return nil
	}

	if err := h.applyOutcome(ctx, log, record, transcript, *lead); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("failed to apply call outcome", zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) applyOutcome(ctx context.Context, log *zap.Logger, record *domain.CallRecord, transcript *domain.Transcript, lead domain.Lead) error {
	jobType := record.JobType
	now := h.Clock.Now()

	released := record.ReleasedStatus()
	if err := h.Leads.ReleaseClaim(ctx, lead.ID, released); err != nil {
		return fmt.Errorf("lifecycle: release claim: %w", err)
	}
	if lead.Status == domain.LeadStatusCalling {
		lead.Status = released
	}
	lead.Contacted = true

	decision := h.decide(ctx, log, jobType, transcript, lead, now)
	log.Info("call outcome resolved", zap.String("branch", decision.Branch), zap.String("job_type", string(jobType)))

	update := decision.LeadUpdate()
	contacted := true
	update.Contacted = &contacted
	if err := h.Leads.ApplyUpdate(ctx, lead.ID, update); err != nil {
		return fmt.Errorf("lifecycle: apply update: %w", err)
	}
	update.Apply(&lead)

	h.runEffects(ctx, log, decision, lead)
	h.syncCRM(ctx, log, lead)

	if err := h.Calls.MarkOutcomeApplied(ctx, record.ExternalCallID, now.UTC()); err != nil {
		return fmt.Errorf("lifecycle: mark outcome applied: %w", err)
	}
	return nil
}

func (h *Handler) decide(ctx context.Context, log *zap.Logger, jobType domain.JobType, transcript *domain.Transcript, lead domain.Lead, now time.Time) resolver.Decision {
	params := h.params(ctx, log)

	if transcript.Empty() {
		return resolver.Fallback(params, jobType, now)
	}

	intent, err := h.Interpreter.Interpret(ctx, transcript.FullText())
	if err != nil {
		log.Warn("transcript interpretation failed, using fallback", zap.Error(err))
		return resolver.Fallback(params, jobType, now)
	}
	return resolver.Resolve(params, jobType, intent, lead, now)
}

// params adds the reschedule job's start time to the configured tunables.
func (h *Handler) params(ctx context.Context, log *zap.Logger) resolver.Params {
	params := h.Params
	if h.Schedules == nil {
		return params
	}
	schedule, err := h.Schedules.Get(ctx, domain.JobTypeReschedule)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("failed to load reschedule job settings", zap.Error(err))
		}
		return params
	}
	params.RescheduleStart = schedule.StartTime
	return params
}

func (h *Handler) runEffects(ctx context.Context, log *zap.Logger, decision resolver.Decision, lead domain.Lead) {
	if h.Notifier == nil {
		return
	}
	for _, effect := range decision.Effects {
		var (
			sent bool
			err  error
		)
		switch effect {
		case resolver.EffectSendEmail:
			sent, err = h.Notifier.SendVerificationEmail(ctx, lead)
		case resolver.EffectSendSMS:
			sent, err = h.Notifier.SendVerificationSMS(ctx, lead)
		default:
			continue
		}
		if err != nil {
			log.Error("verification send failed", zap.String("effect", string(effect)), zap.Error(err))
			continue
		}
		log.Debug("verification effect processed", zap.String("effect", string(effect)), zap.Bool("sent", sent))
	}
}

func (h *Handler) syncCRM(ctx context.Context, log *zap.Logger, lead domain.Lead) {
	if lead.CRMID == "" {
		return
	}
	if err := h.CRM.UpdateStatus(ctx, lead.CRMID, lead.Status); err != nil {
		log.Warn("crm status update failed", zap.Error(err))
	}
}

// mergeRecord creates or enriches the call record for the event. An ended record only
// takes late cost and duration.
func (h *Handler) mergeRecord(ctx context.Context, evt queue.CallEvent, leadID uuid.UUID) (*domain.CallRecord, error) {
	if evt.Call.CallID == "" {
		return nil, fmt.Errorf("%w: lifecycle: event without call id", apperrors.ErrValidation)
	}

	now := h.Clock.Now().UTC()
	record, err := h.Calls.GetCall(ctx, evt.Call.CallID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		record = &domain.CallRecord{
			ID:             uuid.New(),
			ExternalCallID: evt.Call.CallID,
			LeadID:         leadID,
			JobType:        evt.JobType(),
			Status:         domain.CallStatusRegistered,
			CreatedAt:      now,
		}
	case err != nil:
		return nil, fmt.Errorf("lifecycle: load call record: %w", err)
	}

	p := evt.Call
	if record.Status == domain.CallStatusEnded {
		return h.enrichEnded(ctx, record, p, now)
	}
	switch {
	case p.CallStatus != "":
		record.Status = domain.CallStatus(p.CallStatus)
	case evt.IsCompletion():
		record.Status = domain.CallStatusEnded
	case evt.Event == queue.EventCallStarted:
		record.Status = domain.CallStatusOngoing
	}
	if t := p.StartTime(); t != nil {
		record.StartTimestamp = t
	}
	if t := p.EndTime(); t != nil {
		record.EndTimestamp = t
	}
	if p.DurationMs > 0 {
		record.DurationMs = p.DurationMs
	}
	if p.DisconnectionReason != "" {
		record.DisconnectReason = p.DisconnectionReason
	}
	if p.CallCost != nil {
		record.Cost = p.CallCost.CombinedCost
	}
	record.UpdatedAt = now

	if err := h.Calls.SaveCall(ctx, record); err != nil {
		return nil, fmt.Errorf("lifecycle: save call record: %w", err)
	}
	return record, nil
}

func (h *Handler) enrichEnded(ctx context.Context, record *domain.CallRecord, p queue.CallPayload, now time.Time) (*domain.CallRecord, error) {
	changed := false
	if p.DurationMs > 0 && p.DurationMs != record.DurationMs {
		record.DurationMs = p.DurationMs
		changed = true
	}
	if p.CallCost != nil && p.CallCost.CombinedCost != record.Cost {
		record.Cost = p.CallCost.CombinedCost
		changed = true
	}
	if !changed {
		return record, nil
	}
	record.UpdatedAt = now
	if err := h.Calls.SaveCall(ctx, record); err != nil {
		return nil, fmt.Errorf("lifecycle: save call record: %w", err)
	}
	return record, nil
}

// mergeTranscript stores the event transcript when it is richer than the stored one
// and returns whichever is richer.
func (h *Handler) mergeTranscript(ctx context.Context, evt queue.CallEvent) (*domain.Transcript, error) {
	stored, err := h.Calls.GetTranscript(ctx, evt.Call.CallID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("lifecycle: load transcript: %w", err)
		}
		stored = nil
	}

	incoming := evt.Transcript()
	if incoming == nil || !incoming.RicherThan(stored) {
		return stored, nil
	}
	incoming.UpdatedAt = h.Clock.Now().UTC()
	if err := h.Calls.SaveTranscript(ctx, incoming); err != nil {
		return nil, fmt.Errorf("lifecycle: save transcript: %w", err)
	}
	return incoming, nil
}
