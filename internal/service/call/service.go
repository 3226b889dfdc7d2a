package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/crm"
	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
	"github.com/acme/lead-engagement/internal/telephony"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
	"github.com/acme/lead-engagement/pkg/phone"
)

// Config holds call placement settings.
type Config struct {
	FromNumber    string
	DefaultRegion string
	Timeout       time.Duration
}

// Service places calls for already-claimed leads and records them.
type Service struct {
	leads    repository.LeadRepository
	calls    repository.CallStore
	provider telephony.Provider
	crm      crm.Client
	cfg      Config
	clock    clock.Clock
	logger   *logger.Logger
}

// NewService builds the call placement service.
func NewService(
	leads repository.LeadRepository,
	calls repository.CallStore,
	provider telephony.Provider,
	crmClient crm.Client,
	cfg Config,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	if crmClient == nil {
		crmClient = crm.Noop{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		leads:    leads,
		calls:    calls,
		provider: provider,
		crm:      crmClient,
		cfg:      cfg,
		clock:    clk,
		logger:   log,
	}
}

// PlaceCall dials lead for jobType. The caller must already hold the calling claim.
// Returned errors wrap apperrors.ErrPermanent, ErrValidation or ErrTransient.
func (s *Service) PlaceCall(ctx context.Context, lead domain.Lead, jobType domain.JobType) (*domain.CallRecord, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", apperrors.ErrValidation, jobType)
	}

	to, err := phone.NormalizeE164(lead.Phone, s.cfg.DefaultRegion)
	if err != nil {
		return nil, fmt.Errorf("call service: %w", err)
	}

	req := telephony.CallRequest{
		FromNumber:       s.cfg.FromNumber,
		ToNumber:         to,
		DynamicVariables: map[string]string{"lead_id": lead.ID.String()},
		Metadata:         telephony.CallMetadata{LeadID: lead.ID, JobType: jobType},
	}
	if jobType == domain.JobTypeReschedule {
		if prev := s.previousTranscript(ctx, lead); prev != "" {
			req.DynamicVariables["previous_transcript"] = prev
		}
	}

	callCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	ref, err := s.provider.PlaceCall(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !apperrors.Is(err, apperrors.ErrTransient) {
			err = fmt.Errorf("%w: %v", apperrors.ErrTransient, err)
		}
		return nil, fmt.Errorf("call service: place call: %w", err)
	}

	now := s.clock.Now().UTC()
	record := &domain.CallRecord{
		ID:               uuid.New(),
		ExternalCallID:   ref.ExternalCallID,
		LeadID:           lead.ID,
		JobType:          jobType,
		LeadStatusBefore: lead.Status,
		Status:           domain.CallStatusRegistered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// the call is live from here on, so storage failures are logged rather than returned
	if err := s.calls.SaveCall(ctx, record); err != nil {
		s.logger.Error("failed to persist call record", zap.String("lead_id", lead.ID.String()),
			zap.String("call_id", ref.ExternalCallID), zap.Error(err))
	}
	if err := s.leads.RecordCallPlaced(ctx, lead.ID, ref.ExternalCallID, jobType, now); err != nil {
		s.logger.Error("failed to link call to lead", zap.String("lead_id", lead.ID.String()),
			zap.String("call_id", ref.ExternalCallID), zap.Error(err))
	}

	s.syncCRM(ctx, lead)
	return record, nil
}

func (s *Service) previousTranscript(ctx context.Context, lead domain.Lead) string {
	if lead.LastCallID == "" {
		return ""
	}
	tr, err := s.calls.GetTranscript(ctx, lead.LastCallID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to load previous transcript", zap.String("lead_id", lead.ID.String()), zap.Error(err))
		}
		return ""
	}
	return tr.FullText()
}

func (s *Service) syncCRM(ctx context.Context, lead domain.Lead) {
	log := s.logger.With(zap.String("lead_id", lead.ID.String()))

	crmID, err := crm.EnsureLead(ctx, s.crm, lead)
	if err != nil {
		log.Warn("crm sync failed", zap.Error(err))
		return
	}
	if crmID == "" {
		return
	}
	if crmID != lead.CRMID {
		if err := s.leads.SetCRMID(ctx, lead.ID, crmID); err != nil {
			log.Warn("failed to store crm id", zap.Error(err))
		}
	}
	if err := s.crm.UpdateStatus(ctx, crmID, domain.LeadStatusCalling); err != nil {
		log.Warn("crm status update failed", zap.Error(err))
	}
}
