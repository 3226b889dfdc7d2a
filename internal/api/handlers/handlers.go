package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/followup"
	"github.com/acme/lead-engagement/internal/queue"
	"github.com/acme/lead-engagement/internal/repository"
	"github.com/acme/lead-engagement/pkg/logger"
)

// EventPublisher forwards provider webhooks to the event stream.
type EventPublisher interface {
	PublishCallEvent(ctx context.Context, evt queue.CallEvent) error
}

// ScheduleEditor replaces job schedule settings and re-arms their timers.
type ScheduleEditor interface {
	UpsertJobSchedule(ctx context.Context, jobType domain.JobType, in followup.JobScheduleInput) (*domain.JobSchedule, error)
}

// CallTrigger places an immediate call for one lead.
type CallTrigger interface {
	CallNow(ctx context.Context, leadID uuid.UUID, jobType domain.JobType) (*domain.CallRecord, error)
}

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// Deps groups the collaborators behind the HTTP surface.
type Deps struct {
	Events    EventPublisher
	Schedules repository.JobScheduleRepository
	Editor    ScheduleEditor
	Calls     CallTrigger
	History   repository.CallHistory
	Health    map[string]HealthCheck
	Logger    *logger.Logger
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	deps Deps
}

// NewHandlerSet creates a new handler bundle.
func NewHandlerSet(deps Deps) *HandlerSet {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &HandlerSet{deps: deps}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	app.Post("/webhooks/call-events", h.callEvent)

	v1 := app.Group("/api").Group("/v1")

	schedules := v1.Group("/job-schedules")
	schedules.Get("/", h.listSchedules)
	schedules.Get("/:jobType", h.getSchedule)
	schedules.Put("/:jobType", h.putSchedule)

	leads := v1.Group("/leads")
	leads.Post("/:id/call", h.callNow)
	leads.Get("/:id/calls", h.listLeadCalls)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if fiberErr, ok := err.(*fiber.Error); ok {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code == fiber.StatusInternalServerError {
		h.deps.Logger.Error("request failed", zap.String("path", ctx.Path()), zap.Error(err))
		message = "internal error"
	}

	return ctx.Status(code).JSON(fiber.Map{
		"error":    message,
		"trace_id": ctx.GetRespHeader("Trace-Id"),
	})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), 2*time.Second)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.deps.Health {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	status, label := fiber.StatusOK, "ok"
	if len(errs) > 0 {
		status, label = fiber.StatusServiceUnavailable, "degraded"
	}

	return ctx.Status(status).JSON(fiber.Map{"status": label, "errors": errs})
}
