// Package dispatcher selects leads on a fixed tick and places calls for them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/repository"
	"github.com/acme/lead-engagement/pkg/clock"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/logger"
)

// CallPlacer dials a lead that is already claimed.
type CallPlacer interface {
	PlaceCall(ctx context.Context, lead domain.Lead, jobType domain.JobType) (*domain.CallRecord, error)
}

// PromptUpdater pushes the conversation script of a job type to the provider.
type PromptUpdater interface {
	UpdatePrompt(ctx context.Context, jobType domain.JobType, prompt string) error
}

// Config tunes the dispatcher.
type Config struct {
	TickInterval       time.Duration
	MaxBatchSize       int
	CallPacing         time.Duration
	CallbackLookBehind time.Duration
	Location           *time.Location
	// Prompts maps a job type to the script pushed before its batches.
	Prompts map[string]string
}

// Summary counts what happened to the leads of one pass.
type Summary struct {
	Selected int
	Placed   int
	Skipped  int
	Failed   int
}

// Dispatcher runs batch and individual call passes.
type Dispatcher struct {
	leads     repository.LeadRepository
	schedules repository.JobScheduleRepository
	placer    CallPlacer
	prompts   PromptUpdater
	limiter   *rate.Limiter
	cfg       Config
	clock     clock.Clock
	logger    *logger.Logger
	tracer    trace.Tracer

	// batches guards against overlapping passes of the same job type.
	batches sync.Map
}

// New constructs a Dispatcher. prompts may be nil.
func New(
	leads repository.LeadRepository,
	schedules repository.JobScheduleRepository,
	placer CallPlacer,
	prompts PromptUpdater,
	cfg Config,
	clk clock.Clock,
	log *logger.Logger,
) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clk == nil {
		clk = clock.System{}
	}

	limit := rate.Inf
	if cfg.CallPacing > 0 {
		limit = rate.Every(cfg.CallPacing)
	}

	return &Dispatcher{
		leads:     leads,
		schedules: schedules,
		placer:    placer,
		prompts:   prompts,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
		clock:     clk,
		logger:    log,
		tracer:    otel.Tracer("leads.dispatcher"),
	}
}

// Run executes the callback loop and the batch loop until cancelled. The loops tick
// independently so a long batch never holds back due callbacks.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.loop(ctx, "callbacks", func(ctx context.Context) error {
			_, err := d.RunIndividual(ctx)
			return err
		})
	})
	g.Go(func() error {
		return d.loop(ctx, "batches", d.Tick)
	})
	return g.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, name string, pass func(context.Context) error) error {
	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := pass(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("dispatcher pass failed", zap.String("pass", name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs every window-mode batch concurrently. A failing batch never cancels the
// others; their errors are joined.
func (d *Dispatcher) Tick(ctx context.Context) error {
	ctx, span := d.tracer.Start(ctx, "dispatcher.tick")
	defer span.End()

	schedules, err := d.schedules.List(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dispatcher: list job schedules: %w", err)
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, s := range schedules {
		if s.EndTime == nil {
			continue
		}
		jobType := s.JobType
		g.Go(func() error {
			_, err := d.RunBatch(ctx, jobType)
			collect(err)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RunScheduledBatch is the follow-up timer entry point. Window-mode schedules are left
// to the tick.
func (d *Dispatcher) RunScheduledBatch(ctx context.Context, jobType domain.JobType) error {
	schedule, err := d.schedules.Get(ctx, jobType)
	if err != nil {
		return fmt.Errorf("dispatcher: load schedule %s: %w", jobType, err)
	}
	if schedule.EndTime != nil {
		return nil
	}
	_, err = d.RunBatch(ctx, jobType)
	return err
}

// RunBatch calls the eligible leads of jobType if its schedule is enabled and open now.
func (d *Dispatcher) RunBatch(ctx context.Context, jobType domain.JobType) (Summary, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.batch", trace.WithAttributes(attribute.String("job_type", string(jobType))))
	defer span.End()
	log := d.logger.WithContext(ctx).With(zap.String("job_type", string(jobType)))

	schedule, err := d.schedules.Get(ctx, jobType)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("dispatcher: load schedule %s: %w", jobType, err)
	}

	now := d.clock.Now().In(d.cfg.Location)
	if !schedule.Enabled || !WindowOpen(*schedule, now) {
		log.Debug("batch window closed")
		return Summary{}, nil
	}

	if _, busy := d.batches.LoadOrStore(jobType, struct{}{}); busy {
		log.Debug("batch already running")
		return Summary{}, nil
	}
	defer d.batches.Delete(jobType)

	limit := schedule.CallLimit
	if limit <= 0 {
		limit = d.cfg.MaxBatchSize
	}
	leads, err := d.leads.ListEligible(ctx, jobType, limit)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("dispatcher: select %s leads: %w", jobType, err)
	}
	span.SetAttributes(attribute.Int("leads.selected", len(leads)))
	if len(leads) == 0 {
		return Summary{}, nil
	}

	d.pushPrompt(ctx, log, jobType)

	summary := d.callAll(ctx, leads, jobType, false)
	log.Info("batch finished", zap.Int("selected", summary.Selected), zap.Int("placed", summary.Placed),
		zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, ctx.Err()
}

// RunIndividual calls the leads whose callback is due by the end of the current minute,
// including overdue ones. A positive CallbackLookBehind caps how far back it looks.
func (d *Dispatcher) RunIndividual(ctx context.Context) (Summary, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.individual")
	defer span.End()

	minute := d.clock.Now().In(d.cfg.Location).Truncate(time.Minute)
	to := minute.Add(time.Minute)
	var from time.Time
	if d.cfg.CallbackLookBehind > 0 {
		from = minute.Add(-d.cfg.CallbackLookBehind)
	}

	leads, err := d.leads.ListDueCallbacks(ctx, from, to, d.cfg.MaxBatchSize)
	if err != nil {
		span.RecordError(err)
		return Summary{}, fmt.Errorf("dispatcher: select due callbacks: %w", err)
	}
	span.SetAttributes(attribute.Int("leads.selected", len(leads)))
	if len(leads) == 0 {
		return Summary{}, nil
	}

	summary := d.callAll(ctx, leads, domain.JobTypeReschedule, true)
	d.logger.Info("callbacks finished", zap.Int("selected", summary.Selected), zap.Int("placed", summary.Placed),
		zap.Int("skipped", summary.Skipped), zap.Int("failed", summary.Failed))
	return summary, ctx.Err()
}

// CallNow claims and dials a single lead outside any schedule.
func (d *Dispatcher) CallNow(ctx context.Context, leadID uuid.UUID, jobType domain.JobType) (*domain.CallRecord, error) {
	if !jobType.Valid() {
		return nil, fmt.Errorf("%w: unknown job type %q", apperrors.ErrValidation, jobType)
	}
	lead, err := d.leads.Get(ctx, leadID)
	if err != nil {
		return nil, err
	}
	record, claimed, err := d.callLead(ctx, *lead, jobType, false)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: lead %s is already being called", apperrors.ErrConflict, leadID)
	}
	return record, nil
}

// callAll processes leads one after another. Each lead is isolated from the others.
func (d *Dispatcher) callAll(ctx context.Context, leads []domain.Lead, jobType domain.JobType, clearCallback bool) Summary {
	summary := Summary{Selected: len(leads)}
	for _, lead := range leads {
		if ctx.Err() != nil {
			break
		}
		if err := d.limiter.Wait(ctx); err != nil {
			break
		}

		_, claimed, err := d.callLead(ctx, lead, jobType, clearCallback)
		switch {
		case err != nil:
			summary.Failed++
		case !claimed:
			summary.Skipped++
		default:
			summary.Placed++
		}
	}
	return summary
}

// callLead claims lead and then dials it. On failure the claim is released: back to the
// pre-claim status for transient errors, to error for permanent ones.
func (d *Dispatcher) callLead(ctx context.Context, lead domain.Lead, jobType domain.JobType, clearCallback bool) (*domain.CallRecord, bool, error) {
	log := d.logger.With(zap.String("lead_id", lead.ID.String()), zap.String("job_type", string(jobType)))

	claimed, err := d.leads.ClaimForCall(ctx, lead.ID, clearCallback)
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return nil, false, fmt.Errorf("dispatcher: claim lead: %w", err)
	}
	if !claimed {
		log.Debug("lead claimed elsewhere, skipping")
		return nil, false, nil
	}

	record, err := d.placer.PlaceCall(ctx, lead, jobType)
	if err == nil {
		log.Info("call placed", zap.String("call_id", record.ExternalCallID))
		return record, true, nil
	}

	release := lead.Status
	if apperrors.IsPermanent(err) {
		release = domain.LeadStatusError
	}
	log.Error("call placement failed", zap.Error(err), zap.String("released_to", string(release)))
	if rerr := d.leads.ReleaseClaim(context.WithoutCancel(ctx), lead.ID, release); rerr != nil {
		log.Error("failed to release claim", zap.Error(rerr))
	}
	return nil, true, err
}

func (d *Dispatcher) pushPrompt(ctx context.Context, log *zap.Logger, jobType domain.JobType) {
	if d.prompts == nil {
		return
	}
	prompt := d.cfg.Prompts[string(jobType)]
	if prompt == "" {
		return
	}
	if err := d.prompts.UpdatePrompt(ctx, jobType, prompt); err != nil {
		log.Warn("prompt update failed, continuing with the current script", zap.Error(err))
	}
}
