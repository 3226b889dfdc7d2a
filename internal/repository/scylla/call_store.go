package scylla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
)

// Schema creates the tables used by CallStore.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS call_records (
		call_id text PRIMARY KEY,
		id text,
		lead_id text,
		job_type text,
		lead_status_before text,
		status text,
		start_ts timestamp,
		end_ts timestamp,
		duration_ms bigint,
		disconnect_reason text,
		cost double,
		outcome_applied_at timestamp,
		created_at timestamp,
		updated_at timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS calls_by_lead (
		lead_id text,
		bucket timestamp,
		call_id text,
		job_type text,
		created_at timestamp,
		PRIMARY KEY ((lead_id), bucket, call_id)
	) WITH CLUSTERING ORDER BY (bucket DESC, call_id ASC)`,
	`CREATE TABLE IF NOT EXISTS transcripts (
		call_id text PRIMARY KEY,
		text text,
		turns text,
		updated_at timestamp
	)`,
}

// CallStore persists call records and transcripts in Scylla.
type CallStore struct {
	session *gocql.Session
}

// NewCallStore creates a new call store.
func NewCallStore(session *gocql.Session) *CallStore {
	return &CallStore{session: session}
}

// EnsureSchema applies Schema to the session's keyspace.
func (s *CallStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("call store: schema: %w", err)
		}
	}
	return nil
}

// SaveCall upserts a call record and indexes it under its lead.
func (s *CallStore) SaveCall(ctx context.Context, record *domain.CallRecord) error {
	if record.ExternalCallID == "" {
		return fmt.Errorf("call store: save call: missing external call id")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	if err := s.session.Query(`INSERT INTO call_records (call_id, id, lead_id, job_type, lead_status_before, status, start_ts,
		end_ts, duration_ms, disconnect_reason, cost, outcome_applied_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ExternalCallID, record.ID.String(), record.LeadID.String(), string(record.JobType),
		string(record.LeadStatusBefore), string(record.Status),
		record.StartTimestamp, record.EndTimestamp, record.DurationMs,
		record.DisconnectReason, record.Cost, record.OutcomeAppliedAt, record.CreatedAt, record.UpdatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert call_records: %w", err)
	}

	if record.LeadID == uuid.Nil {
		return nil
	}
	if err := s.session.Query(`INSERT INTO calls_by_lead (lead_id, bucket, call_id, job_type, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.LeadID.String(), bucketDate(record.CreatedAt), record.ExternalCallID, string(record.JobType), record.CreatedAt,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert calls_by_lead: %w", err)
	}
	return nil
}

// GetCall retrieves a call by its provider id.
func (s *CallStore) GetCall(ctx context.Context, externalCallID string) (*domain.CallRecord, error) {
	var row callRow
	err := s.session.Query(`SELECT call_id, id, lead_id, job_type, lead_status_before, status, start_ts, end_ts,
		duration_ms, disconnect_reason, cost, outcome_applied_at, created_at, updated_at
		FROM call_records WHERE call_id = ?`, externalCallID).WithContext(ctx).
		Scan(&row.callID, &row.id, &row.leadID, &row.jobType, &row.statusBefore, &row.status, &row.start, &row.end, &row.durationMs,
			&row.disconnectReason, &row.cost, &row.outcomeAt, &row.createdAt, &row.updatedAt)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call store: get call: %w", err)
	}
	return row.toDomain()
}

// MarkOutcomeApplied stamps the call once its outcome has been written to the lead.
func (s *CallStore) MarkOutcomeApplied(ctx context.Context, externalCallID string, at time.Time) error {
	if _, err := s.GetCall(ctx, externalCallID); err != nil {
		return err
	}
	if err := s.session.Query(`UPDATE call_records SET outcome_applied_at = ?, updated_at = ? WHERE call_id = ?`,
		at.UTC(), time.Now().UTC(), externalCallID,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: mark outcome: %w", err)
	}
	return nil
}

// ListCallsByLead returns a page of a lead's calls, newest day first, and the paging
// state of the next page (nil on the last one).
func (s *CallStore) ListCallsByLead(ctx context.Context, leadID uuid.UUID, limit int, pageState []byte) ([]domain.CallRecord, []byte, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.session.Query(`SELECT call_id FROM calls_by_lead WHERE lead_id = ?`, leadID.String()).
		WithContext(ctx).PageSize(limit)
	if len(pageState) > 0 {
		query = query.PageState(pageState)
	}

	iter := query.Iter()
	var (
		ids    []string
		callID string
	)
	for iter.Scan(&callID) {
		ids = append(ids, callID)
	}
	next := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call store: iter close: %w", err)
	}

	records := make([]domain.CallRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetCall(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, nil, err
		}
		records = append(records, *record)
	}
	if len(next) == 0 {
		next = nil
	}
	return records, next, nil
}

// GetTranscript fetches the transcript of a call.
func (s *CallStore) GetTranscript(ctx context.Context, externalCallID string) (*domain.Transcript, error) {
	var (
		text, turns string
		updated     time.Time
	)
	err := s.session.Query(`SELECT text, turns, updated_at FROM transcripts WHERE call_id = ?`, externalCallID).
		WithContext(ctx).Scan(&text, &turns, &updated)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call store: get transcript: %w", err)
	}

	decoded, err := decodeTurns(turns)
	if err != nil {
		return nil, err
	}
	return &domain.Transcript{ExternalCallID: externalCallID, Text: text, Turns: decoded, UpdatedAt: updated}, nil
}

// SaveTranscript upserts the transcript of a call.
func (s *CallStore) SaveTranscript(ctx context.Context, transcript *domain.Transcript) error {
	turns, err := encodeTurns(transcript.Turns)
	if err != nil {
		return err
	}
	updated := transcript.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	if err := s.session.Query(`INSERT INTO transcripts (call_id, text, turns, updated_at) VALUES (?, ?, ?, ?)`,
		transcript.ExternalCallID, transcript.Text, turns, updated,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call store: insert transcript: %w", err)
	}
	return nil
}

type callRow struct {
	callID           string
	id               string
	leadID           string
	jobType          string
	statusBefore     string
	status           string
	start            *time.Time
	end              *time.Time
	durationMs       int64
	disconnectReason string
	cost             float64
	outcomeAt        *time.Time
	createdAt        time.Time
	updatedAt        time.Time
}

func (r callRow) toDomain() (*domain.CallRecord, error) {
	record := &domain.CallRecord{
		ExternalCallID:   r.callID,
		JobType:          domain.JobType(r.jobType),
		LeadStatusBefore: domain.LeadStatus(r.statusBefore),
		Status:           domain.CallStatus(r.status),
		StartTimestamp:   nonZero(r.start),
		EndTimestamp:     nonZero(r.end),
		DurationMs:       r.durationMs,
		DisconnectReason: r.disconnectReason,
		Cost:             r.cost,
		OutcomeAppliedAt: nonZero(r.outcomeAt),
		CreatedAt:        r.createdAt,
		UpdatedAt:        r.updatedAt,
	}
	if r.id != "" {
		id, err := uuid.Parse(r.id)
		if err != nil {
			return nil, fmt.Errorf("call store: parse id: %w", err)
		}
		record.ID = id
	}
	if r.leadID != "" {
		leadID, err := uuid.Parse(r.leadID)
		if err != nil {
			return nil, fmt.Errorf("call store: parse lead_id: %w", err)
		}
		record.LeadID = leadID
	}
	return record, nil
}

// nonZero maps a null or zero timestamp to nil.
func nonZero(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func encodeTurns(turns []domain.TranscriptTurn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("call store: encode turns: %w", err)
	}
	return string(data), nil
}

func decodeTurns(raw string) ([]domain.TranscriptTurn, error) {
	if raw == "" {
		return nil, nil
	}
	var turns []domain.TranscriptTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("call store: decode turns: %w", err)
	}
	return turns, nil
}

func bucketDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
