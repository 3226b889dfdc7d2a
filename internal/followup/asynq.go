package followup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/acme/lead-engagement/internal/domain"
)

// TaskFollowupFire is the asynq task type of a job schedule timer.
const TaskFollowupFire = "followup.fire"

// FirePayload identifies the timer that fired.
type FirePayload struct {
	JobType string `json:"jobType"`
	TimerID string `json:"timerId"`
}

// AsynqRegistry stores timers as delayed asynq tasks in Redis so they survive restarts.
type AsynqRegistry struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

// NewAsynqRegistry creates a registry on the given Redis connection.
func NewAsynqRegistry(opt asynq.RedisConnOpt, queue string) *AsynqRegistry {
	if queue == "" {
		queue = "default"
	}
	return &AsynqRegistry{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     queue,
	}
}

// Register implements TimerRegistry.
func (r *AsynqRegistry) Register(ctx context.Context, jobType domain.JobType, at time.Time) (string, error) {
	id := fmt.Sprintf("followup:%s:%s", jobType, uuid.NewString())
	data, err := json.Marshal(FirePayload{JobType: string(jobType), TimerID: id})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskFollowupFire, data)
	if _, err := r.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.Queue(r.queue),
		asynq.TaskID(id),
		asynq.MaxRetry(3),
	); err != nil {
		return "", fmt.Errorf("asynq: enqueue timer: %w", err)
	}
	return id, nil
}

// Deregister implements TimerRegistry.
func (r *AsynqRegistry) Deregister(_ context.Context, timerID string) error {
	if timerID == "" {
		return nil
	}
	err := r.inspector.DeleteTask(r.queue, timerID)
	if err == nil || errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return fmt.Errorf("asynq: delete timer: %w", err)
}

// Close releases the Redis connections.
func (r *AsynqRegistry) Close() error {
	return errors.Join(r.client.Close(), r.inspector.Close())
}

// HandleFire adapts Scheduler.Fire to an asynq handler.
func (s *Scheduler) HandleFire(ctx context.Context, task *asynq.Task) error {
	var payload FirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("followup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	return s.Fire(ctx, domain.JobType(payload.JobType), payload.TimerID)
}

// NewServer builds the asynq server that delivers timer tasks to s.
func NewServer(opt asynq.RedisConnOpt, queue string, concurrency int, s *Scheduler) (*asynq.Server, *asynq.ServeMux) {
	if queue == "" {
		queue = "default"
	}
	if concurrency < 1 {
		concurrency = 4
	}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskFollowupFire, s.HandleFire)
	return server, mux
}
