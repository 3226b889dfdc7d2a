package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
)

// JobScheduleRepository persists per-job-type recurring windows.
type JobScheduleRepository struct {
	db *sqlx.DB
}

// NewJobScheduleRepository creates a new repository.
func NewJobScheduleRepository(db *sqlx.DB) *JobScheduleRepository {
	return &JobScheduleRepository{db: db}
}

const scheduleColumns = `job_type, enabled, start_minute, end_minute, selected_days, call_limit, timer_id, updated_at`

// Get fetches the schedule for jobType.
func (r *JobScheduleRepository) Get(ctx context.Context, jobType domain.JobType) (*domain.JobSchedule, error) {
	var rec scheduleRecord
	err := r.db.QueryRowxContext(ctx, `SELECT `+scheduleColumns+` FROM job_schedules WHERE job_type = $1`, string(jobType)).StructScan(&rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("job schedules: get: %w", err)
	}
	s := rec.toDomain()
	return &s, nil
}

// List returns every stored schedule.
func (r *JobScheduleRepository) List(ctx context.Context) ([]domain.JobSchedule, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT `+scheduleColumns+` FROM job_schedules ORDER BY job_type`)
	if err != nil {
		return nil, fmt.Errorf("job schedules: list: %w", err)
	}
	defer rows.Close()

	var out []domain.JobSchedule
	for rows.Next() {
		var rec scheduleRecord
		if err := rows.StructScan(&rec); err != nil {
			return nil, fmt.Errorf("job schedules: scan: %w", err)
		}
		out = append(out, rec.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job schedules: rows err: %w", err)
	}
	return out, nil
}

// Upsert writes the schedule settings, including the timer id.
func (r *JobScheduleRepository) Upsert(ctx context.Context, s *domain.JobSchedule) error {
	rec := fromDomainSchedule(s)
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO job_schedules (`+scheduleColumns+`)
		VALUES (:job_type, :enabled, :start_minute, :end_minute, :selected_days, :call_limit, :timer_id, NOW())
		ON CONFLICT (job_type) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			selected_days = EXCLUDED.selected_days,
			call_limit = EXCLUDED.call_limit,
			timer_id = EXCLUDED.timer_id,
			updated_at = NOW()`, rec)
	if err != nil {
		return fmt.Errorf("job schedules: upsert: %w", err)
	}
	return nil
}

// EnsureDefaults inserts missing schedules in one transaction.
func (r *JobScheduleRepository) EnsureDefaults(ctx context.Context, defaults []domain.JobSchedule) error {
	return withTx(ctx, r.db, "job schedules: ensure defaults", nil, func(tx *sqlx.Tx) error {
		for i := range defaults {
			rec := fromDomainSchedule(&defaults[i])
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO job_schedules (`+scheduleColumns+`)
				VALUES (:job_type, :enabled, :start_minute, :end_minute, :selected_days, :call_limit, :timer_id, NOW())
				ON CONFLICT (job_type) DO NOTHING`, rec); err != nil {
				return fmt.Errorf("job schedules: ensure default %s: %w", rec.JobType, err)
			}
		}
		return nil
	})
}

// SwapTimerID is a compare-and-set on timer_id.
func (r *JobScheduleRepository) SwapTimerID(ctx context.Context, jobType domain.JobType, expected, next string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE job_schedules SET timer_id = $3, updated_at = NOW()
		WHERE job_type = $1 AND timer_id = $2`, string(jobType), expected, next)
	if err != nil {
		return false, fmt.Errorf("job schedules: swap timer: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("job schedules: rows affected: %w", err)
	}
	return n == 1, nil
}

type scheduleRecord struct {
	JobType      string        `db:"job_type"`
	Enabled      bool          `db:"enabled"`
	StartMinute  sql.NullInt32 `db:"start_minute"`
	EndMinute    sql.NullInt32 `db:"end_minute"`
	SelectedDays int32         `db:"selected_days"`
	CallLimit    int           `db:"call_limit"`
	TimerID      string        `db:"timer_id"`
	UpdatedAt    time.Time     `db:"updated_at"`
}

// selected_days is a bitmask, bit n = time.Weekday(n).
func (r scheduleRecord) toDomain() domain.JobSchedule {
	s := domain.JobSchedule{
		JobType:   domain.JobType(r.JobType),
		Enabled:   r.Enabled,
		CallLimit: r.CallLimit,
		TimerID:   r.TimerID,
		UpdatedAt: r.UpdatedAt,
	}
	if r.StartMinute.Valid {
		t := minuteToTimeOfDay(int(r.StartMinute.Int32))
		s.StartTime = &t
	}
	if r.EndMinute.Valid {
		t := minuteToTimeOfDay(int(r.EndMinute.Int32))
		s.EndTime = &t
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if r.SelectedDays&(1<<uint(d)) != 0 {
			s.SelectedDays = append(s.SelectedDays, d)
		}
	}
	return s
}

func fromDomainSchedule(s *domain.JobSchedule) scheduleRecord {
	rec := scheduleRecord{
		JobType:   string(s.JobType),
		Enabled:   s.Enabled,
		CallLimit: s.CallLimit,
		TimerID:   s.TimerID,
	}
	if s.StartTime != nil {
		rec.StartMinute = sql.NullInt32{Int32: int32(s.StartTime.Minutes()), Valid: true}
	}
	if s.EndTime != nil {
		rec.EndMinute = sql.NullInt32{Int32: int32(s.EndTime.Minutes()), Valid: true}
	}
	for _, d := range s.SelectedDays {
		rec.SelectedDays |= 1 << uint(d)
	}
	return rec
}

func minuteToTimeOfDay(min int) domain.TimeOfDay {
	return domain.TimeOfDay{Hour: min / 60, Minute: min % 60}
}
