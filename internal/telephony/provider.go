package telephony

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
)

// CallMetadata is echoed back by the provider on every webhook for the call.
type CallMetadata struct {
	LeadID  uuid.UUID      `json:"lead_id"`
	JobType domain.JobType `json:"job_type"`
}

// CallRequest describes one outbound call.
type CallRequest struct {
	FromNumber       string
	ToNumber         string
	AgentOverride    string
	DynamicVariables map[string]string
	Metadata         CallMetadata
}

// CallRef identifies a call accepted by the provider.
type CallRef struct {
	ExternalCallID string
	Status         domain.CallStatus
}

// Provider abstracts the voice-agent integration. Errors wrap apperrors.ErrPermanent
// or apperrors.ErrTransient.
type Provider interface {
	PlaceCall(ctx context.Context, req CallRequest) (CallRef, error)
	// UpdatePrompt pushes the conversation script used for jobType.
	UpdatePrompt(ctx context.Context, jobType domain.JobType, prompt string) error
}
