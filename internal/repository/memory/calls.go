package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

// CallStore is a map-backed repository.CallStore. It counts writes so tests can
// assert how many mutations an event produced.
type CallStore struct {
	mu               sync.Mutex
	calls            map[string]domain.CallRecord
	transcripts      map[string]domain.Transcript
	CallWrites       int
	TranscriptWrites int
}

// NewCallStore creates an empty store.
func NewCallStore() *CallStore {
	return &CallStore{
		calls:       make(map[string]domain.CallRecord),
		transcripts: make(map[string]domain.Transcript),
	}
}

func (s *CallStore) GetCall(_ context.Context, externalCallID string) (*domain.CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.calls[externalCallID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (s *CallStore) SaveCall(_ context.Context, record *domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[record.ExternalCallID] = *record
	s.CallWrites++
	return nil
}

func (s *CallStore) MarkOutcomeApplied(_ context.Context, externalCallID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.calls[externalCallID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.OutcomeAppliedAt = &at
	s.calls[externalCallID] = rec
	return nil
}

func (s *CallStore) GetTranscript(_ context.Context, externalCallID string) (*domain.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transcripts[externalCallID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tr, nil
}

func (s *CallStore) SaveTranscript(_ context.Context, transcript *domain.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[transcript.ExternalCallID] = *transcript
	s.TranscriptWrites++
	return nil
}

// ListCallsByLead implements repository.CallHistory with offset paging.
func (s *CallStore) ListCallsByLead(_ context.Context, leadID uuid.UUID, limit int, pageState []byte) ([]domain.CallRecord, []byte, error) {
	if limit <= 0 {
		limit = 50
	}
	offset := 0
	if len(pageState) > 0 {
		n, err := strconv.Atoi(string(pageState))
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("%w: bad page state", apperrors.ErrValidation)
		}
		offset = n
	}

	s.mu.Lock()
	var all []domain.CallRecord
	for _, rec := range s.calls {
		if rec.LeadID == leadID {
			all = append(all, rec)
		}
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ExternalCallID < all[j].ExternalCallID
	})

	if offset >= len(all) {
		return []domain.CallRecord{}, nil, nil
	}
	end := offset + limit
	var next []byte
	if end < len(all) {
		next = []byte(strconv.Itoa(end))
	} else {
		end = len(all)
	}
	return all[offset:end], next, nil
}
