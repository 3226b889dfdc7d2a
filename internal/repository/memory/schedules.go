package memory

import (
	"context"
	"sync"
	"time"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
)

// JobScheduleRepository is a map-backed repository.JobScheduleRepository.
type JobScheduleRepository struct {
	mu        sync.Mutex
	schedules map[domain.JobType]domain.JobSchedule
}

// NewJobScheduleRepository creates an empty repository.
func NewJobScheduleRepository() *JobScheduleRepository {
	return &JobScheduleRepository{schedules: make(map[domain.JobType]domain.JobSchedule)}
}

func (r *JobScheduleRepository) Get(_ context.Context, jobType domain.JobType) (*domain.JobSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[jobType]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *JobScheduleRepository) List(_ context.Context) ([]domain.JobSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.JobSchedule, 0, len(r.schedules))
	for _, jt := range domain.JobTypes {
		if s, ok := r.schedules[jt]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *JobScheduleRepository) Upsert(_ context.Context, schedule *domain.JobSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := *schedule
	s.UpdatedAt = time.Now().UTC()
	r.schedules[s.JobType] = s
	return nil
}

func (r *JobScheduleRepository) EnsureDefaults(_ context.Context, defaults []domain.JobSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range defaults {
		if _, ok := r.schedules[d.JobType]; !ok {
			r.schedules[d.JobType] = d
		}
	}
	return nil
}

func (r *JobScheduleRepository) SwapTimerID(_ context.Context, jobType domain.JobType, expected, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[jobType]
	if !ok {
		return false, repository.ErrNotFound
	}
	if s.TimerID != expected {
		return false, nil
	}
	s.TimerID = next
	r.schedules[jobType] = s
	return true, nil
}
