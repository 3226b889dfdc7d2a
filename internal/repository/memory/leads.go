// Package memory holds in-process repositories used by tests and single-node dev runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
)

// LeadRepository is a map-backed repository.LeadRepository.
type LeadRepository struct {
	mu    sync.Mutex
	leads map[uuid.UUID]domain.Lead
	// OnClaim, when set, observes every successful claim. Tests use it to assert ordering.
	OnClaim func(id uuid.UUID)
}

// NewLeadRepository creates an empty repository.
func NewLeadRepository() *LeadRepository {
	return &LeadRepository{leads: make(map[uuid.UUID]domain.Lead)}
}

// Put stores a copy of lead.
func (r *LeadRepository) Put(lead domain.Lead) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = lead
}

// Get implements repository.LeadRepository.
func (r *LeadRepository) Get(_ context.Context, id uuid.UUID) (*domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lead, nil
}

// ListEligible implements repository.LeadRepository.
func (r *LeadRepository) ListEligible(_ context.Context, jobType domain.JobType, limit int) ([]domain.Lead, error) {
	return r.filter(limit, func(l domain.Lead) bool { return Eligible(l, jobType) }), nil
}

// ListDueCallbacks implements repository.LeadRepository.
func (r *LeadRepository) ListDueCallbacks(_ context.Context, from, to time.Time, limit int) ([]domain.Lead, error) {
	return r.filter(limit, func(l domain.Lead) bool {
		if l.Status == domain.LeadStatusCalling || l.ScheduledCallbackDate == nil {
			return false
		}
		at := *l.ScheduledCallbackDate
		if !from.IsZero() && at.Before(from) {
			return false
		}
		return at.Before(to)
	}), nil
}

// ClaimForCall implements repository.LeadRepository.
func (r *LeadRepository) ClaimForCall(_ context.Context, id uuid.UUID, clearCallback bool) (bool, error) {
	r.mu.Lock()
	lead, ok := r.leads[id]
	if !ok || lead.Status == domain.LeadStatusCalling || (clearCallback && lead.ScheduledCallbackDate == nil) {
		r.mu.Unlock()
		return false, nil
	}
	lead.Status = domain.LeadStatusCalling
	if clearCallback {
		lead.ScheduledCallbackDate = nil
	}
	r.leads[id] = lead
	hook := r.OnClaim
	r.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return true, nil
}

// ReleaseClaim implements repository.LeadRepository.
func (r *LeadRepository) ReleaseClaim(_ context.Context, id uuid.UUID, status domain.LeadStatus) error {
	return r.mutate(id, func(l *domain.Lead) {
		if l.Status == domain.LeadStatusCalling {
			l.Status = status
		}
	})
}

// RecordCallPlaced implements repository.LeadRepository.
func (r *LeadRepository) RecordCallPlaced(_ context.Context, id uuid.UUID, externalCallID string, jobType domain.JobType, at time.Time) error {
	return r.mutate(id, func(l *domain.Lead) {
		l.LastCallID = externalCallID
		if jobType == domain.JobTypeReminder {
			t := at
			l.ReminderSentAt = &t
		}
	})
}

// ApplyUpdate implements repository.LeadRepository.
func (r *LeadRepository) ApplyUpdate(_ context.Context, id uuid.UUID, update domain.LeadUpdate) error {
	return r.mutate(id, func(l *domain.Lead) { update.Apply(l) })
}

// SetCRMID implements repository.LeadRepository.
func (r *LeadRepository) SetCRMID(_ context.Context, id uuid.UUID, crmID string) error {
	return r.mutate(id, func(l *domain.Lead) { l.CRMID = crmID })
}

func (r *LeadRepository) mutate(id uuid.UUID, fn func(*domain.Lead)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&lead)
	lead.UpdatedAt = time.Now().UTC()
	r.leads[id] = lead
	return nil
}

func (r *LeadRepository) filter(limit int, keep func(domain.Lead) bool) []domain.Lead {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Lead
	for _, l := range r.leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Eligible is the in-memory mirror of the batch selection predicates in the postgres repository.
func Eligible(l domain.Lead, jobType domain.JobType) bool {
	if l.Status == domain.LeadStatusCalling {
		return false
	}
	switch jobType {
	case domain.JobTypeInitial:
		return !l.Contacted && l.Status == domain.LeadStatusNew
	case domain.JobTypeReschedule:
		return l.Contacted && !l.LinkSend && !l.FormSubmitted && l.ScheduledCallbackDate == nil &&
			(l.Status == domain.LeadStatusContacted || l.Status == domain.LeadStatusScheduled)
	case domain.JobTypeReminder:
		return l.LinkSend && !l.FormSubmitted && l.ReminderSentAt == nil &&
			(l.Status == domain.LeadStatusReminder || l.Status == domain.LeadStatusContacted)
	}
	return false
}
