package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
)

const leadColumns = `id, phone, email, status, contacted, scheduled_callback_date, reminder_sent_at,
	link_clicked, form_submitted, link_send, last_call_id, crm_id, created_at, updated_at`

// eligibility mirrors memory.Eligible. Every predicate excludes the calling lock.
var eligibility = map[domain.JobType]string{
	domain.JobTypeInitial: `contacted = FALSE AND status = 'new'`,
	domain.JobTypeReschedule: `contacted = TRUE AND link_send = FALSE AND form_submitted = FALSE
		AND scheduled_callback_date IS NULL AND status IN ('contacted', 'scheduled')`,
	domain.JobTypeReminder: `link_send = TRUE AND form_submitted = FALSE AND reminder_sent_at IS NULL
		AND status IN ('reminder', 'contacted')`,
}

// LeadRepository persists leads.
type LeadRepository struct {
	db *sqlx.DB
}

// NewLeadRepository constructs the repository.
func NewLeadRepository(db *sqlx.DB) *LeadRepository {
	return &LeadRepository{db: db}
}

// Get fetches a lead by id.
func (r *LeadRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Lead, error) {
	var rec leadRecord
	err := r.db.QueryRowxContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id).StructScan(&rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("leads: get: %w", err)
	}
	lead := rec.toDomain()
	return &lead, nil
}

// ListEligible returns leads matching the job type's selection predicate.
func (r *LeadRepository) ListEligible(ctx context.Context, jobType domain.JobType, limit int) ([]domain.Lead, error) {
	predicate, ok := eligibility[jobType]
	if !ok {
		return nil, fmt.Errorf("leads: unknown job type %q", jobType)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE status <> 'calling' AND ` + predicate + `
		ORDER BY created_at ASC
		LIMIT $1`
	return r.list(ctx, "list eligible", query, limit)
}

// ListDueCallbacks returns leads whose callback falls within [from, to). A zero from
// includes every overdue callback.
func (r *LeadRepository) ListDueCallbacks(ctx context.Context, from, to time.Time, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 100
	}
	var lower sql.NullTime
	if !from.IsZero() {
		lower = sql.NullTime{Time: from.UTC(), Valid: true}
	}
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE status <> 'calling'
		  AND scheduled_callback_date < $2
		  AND ($1::timestamptz IS NULL OR scheduled_callback_date >= $1)
		ORDER BY scheduled_callback_date ASC
		LIMIT $3`
	return r.list(ctx, "list due callbacks", query, lower, to.UTC(), limit)
}

// ClaimForCall takes the calling lock with a single conditional update.
func (r *LeadRepository) ClaimForCall(ctx context.Context, id uuid.UUID, clearCallback bool) (bool, error) {
	query := `UPDATE leads SET status = 'calling', updated_at = NOW()
		WHERE id = $1 AND status <> 'calling'`
	if clearCallback {
		query = `UPDATE leads SET status = 'calling', scheduled_callback_date = NULL, updated_at = NOW()
		WHERE id = $1 AND status <> 'calling' AND scheduled_callback_date IS NOT NULL`
	}

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("leads: claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("leads: rows affected: %w", err)
	}
	return n == 1, nil
}

// ReleaseClaim moves a calling lead to status.
func (r *LeadRepository) ReleaseClaim(ctx context.Context, id uuid.UUID, status domain.LeadStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE leads SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'calling'`, id, status); err != nil {
		return fmt.Errorf("leads: release claim: %w", err)
	}
	return nil
}

// RecordCallPlaced links the lead to its latest call.
func (r *LeadRepository) RecordCallPlaced(ctx context.Context, id uuid.UUID, externalCallID string, jobType domain.JobType, at time.Time) error {
	query := `UPDATE leads SET last_call_id = $2, updated_at = NOW() WHERE id = $1`
	args := []any{id, externalCallID}
	if jobType == domain.JobTypeReminder {
		query = `UPDATE leads SET last_call_id = $2, reminder_sent_at = $3, updated_at = NOW() WHERE id = $1`
		args = append(args, at.UTC())
	}
	return r.exec(ctx, "record call placed", query, args...)
}

// ApplyUpdate writes the non-nil fields of update.
func (r *LeadRepository) ApplyUpdate(ctx context.Context, id uuid.UUID, update domain.LeadUpdate) error {
	if update.Empty() {
		return nil
	}

	query := `UPDATE leads SET
		status = COALESCE(:status, status),
		contacted = COALESCE(:contacted, contacted),
		scheduled_callback_date = COALESCE(:scheduled_callback_date, scheduled_callback_date),
		email = COALESCE(:email, email),
		phone = COALESCE(:phone, phone),
		link_send = COALESCE(:link_send, link_send),
		updated_at = NOW()
	WHERE id = :id`

	params := map[string]any{
		"id":                      id,
		"status":                  update.Status,
		"contacted":               update.Contacted,
		"scheduled_callback_date": update.ScheduledCallbackDate,
		"email":                   update.Email,
		"phone":                   update.Phone,
		"link_send":               update.LinkSend,
	}

	res, err := r.db.NamedExecContext(ctx, query, params)
	if err != nil {
		return fmt.Errorf("leads: apply update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("leads: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetCRMID stores the external CRM identifier.
func (r *LeadRepository) SetCRMID(ctx context.Context, id uuid.UUID, crmID string) error {
	return r.exec(ctx, "set crm id", `UPDATE leads SET crm_id = $2, updated_at = NOW() WHERE id = $1`, id, crmID)
}

func (r *LeadRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("leads: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("leads: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *LeadRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Lead, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: %s: %w", op, err)
	}
	defer rows.Close()

	var results []domain.Lead
	for rows.Next() {
		var rec leadRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		results = append(results, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows err: %w", err)
	}
	return results, nil
}

type leadRecord struct {
	ID                    uuid.UUID      `db:"id"`
	Phone                 sql.NullString `db:"phone"`
	Email                 sql.NullString `db:"email"`
	Status                string         `db:"status"`
	Contacted             bool           `db:"contacted"`
	ScheduledCallbackDate sql.NullTime   `db:"scheduled_callback_date"`
	ReminderSentAt        sql.NullTime   `db:"reminder_sent_at"`
	LinkClicked           bool           `db:"link_clicked"`
	FormSubmitted         bool           `db:"form_submitted"`
	LinkSend              bool           `db:"link_send"`
	LastCallID            sql.NullString `db:"last_call_id"`
	CRMID                 sql.NullString `db:"crm_id"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r leadRecord) toDomain() domain.Lead {
	lead := domain.Lead{
		ID:            r.ID,
		Phone:         r.Phone.String,
		Email:         r.Email.String,
		Status:        domain.LeadStatus(r.Status),
		Contacted:     r.Contacted,
		LinkClicked:   r.LinkClicked,
		FormSubmitted: r.FormSubmitted,
		LinkSend:      r.LinkSend,
		LastCallID:    r.LastCallID.String,
		CRMID:         r.CRMID.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ScheduledCallbackDate.Valid {
		t := r.ScheduledCallbackDate.Time
		lead.ScheduledCallbackDate = &t
	}
	if r.ReminderSentAt.Valid {
		t := r.ReminderSentAt.Time
		lead.ReminderSentAt = &t
	}
	return lead
}
