package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// LeadRepository manages lead persistence. Claims are optimistic: the conditional
// update either wins or reports false, it never blocks.
type LeadRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	// ListEligible returns leads matching the batch predicate of jobType, never status=calling.
	ListEligible(ctx context.Context, jobType domain.JobType, limit int) ([]domain.Lead, error)
	// ListDueCallbacks returns leads whose callback date falls in [from, to), never status=calling.
	// A zero from selects every callback due before to.
	ListDueCallbacks(ctx context.Context, from, to time.Time, limit int) ([]domain.Lead, error)
	// ClaimForCall sets status=calling unless the lead is already calling. With clearCallback
	// it also nulls the callback date and only succeeds while a date is still set.
	ClaimForCall(ctx context.Context, id uuid.UUID, clearCallback bool) (bool, error)
	// ReleaseClaim moves a calling lead back to status.
	ReleaseClaim(ctx context.Context, id uuid.UUID, status domain.LeadStatus) error
	// RecordCallPlaced links the lead to the placed call.
	RecordCallPlaced(ctx context.Context, id uuid.UUID, externalCallID string, jobType domain.JobType, at time.Time) error
	ApplyUpdate(ctx context.Context, id uuid.UUID, update domain.LeadUpdate) error
	SetCRMID(ctx context.Context, id uuid.UUID, crmID string) error
}

// JobScheduleRepository stores per-job-type recurring windows.
type JobScheduleRepository interface {
	Get(ctx context.Context, jobType domain.JobType) (*domain.JobSchedule, error)
	List(ctx context.Context) ([]domain.JobSchedule, error)
	Upsert(ctx context.Context, schedule *domain.JobSchedule) error
	// EnsureDefaults inserts the given schedules unless one already exists for the job type.
	EnsureDefaults(ctx context.Context, defaults []domain.JobSchedule) error
	// SwapTimerID replaces the stored timer id only if it still equals expected.
	SwapTimerID(ctx context.Context, jobType domain.JobType, expected, next string) (bool, error)
}

// CallStore persists call records and transcripts.
type CallStore interface {
	GetCall(ctx context.Context, externalCallID string) (*domain.CallRecord, error)
	SaveCall(ctx context.Context, record *domain.CallRecord) error
	MarkOutcomeApplied(ctx context.Context, externalCallID string, at time.Time) error
	GetTranscript(ctx context.Context, externalCallID string) (*domain.Transcript, error)
	SaveTranscript(ctx context.Context, transcript *domain.Transcript) error
}

// CallHistory pages through the calls placed to one lead. pageState is opaque and
// nil once the last page is returned.
type CallHistory interface {
	ListCallsByLead(ctx context.Context, leadID uuid.UUID, limit int, pageState []byte) ([]domain.CallRecord, []byte, error)
}
