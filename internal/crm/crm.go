// Package crm mirrors lead status into an external CRM. Every call is best-effort:
// callers log failures and carry on.
package crm

import (
	"context"

	"github.com/acme/lead-engagement/internal/domain"
)

// Client is the CRM collaborator.
type Client interface {
	// FindByPhone returns the CRM id for phone, or "" when absent.
	FindByPhone(ctx context.Context, phone string) (string, error)
	CreateLead(ctx context.Context, lead domain.Lead) (string, error)
	UpdateStatus(ctx context.Context, crmID string, status domain.LeadStatus) error
}

// Noop is used when CRM sync is disabled.
type Noop struct{}

func (Noop) FindByPhone(context.Context, string) (string, error)            { return "", nil }
func (Noop) CreateLead(context.Context, domain.Lead) (string, error)        { return "", nil }
func (Noop) UpdateStatus(context.Context, string, domain.LeadStatus) error { return nil }

// EnsureLead returns the CRM id of lead, creating the CRM record when it does not exist.
func EnsureLead(ctx context.Context, c Client, lead domain.Lead) (string, error) {
	if lead.CRMID != "" {
		return lead.CRMID, nil
	}
	id, err := c.FindByPhone(ctx, lead.Phone)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	return c.CreateLead(ctx, lead)
}
