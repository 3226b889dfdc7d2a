package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/lead-engagement/internal/queue"
)

// callEvent accepts a provider webhook and publishes it for the event worker.
func (h *HandlerSet) callEvent(ctx *fiber.Ctx) error {
	var evt queue.CallEvent
	if err := ctx.BodyParser(&evt); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if evt.Event == "" || evt.Call.CallID == "" {
		return fiber.NewError(http.StatusBadRequest, "event and call.call_id are required")
	}
	evt.ReceivedAt = time.Now().UTC()

	if err := h.deps.Events.PublishCallEvent(ctx.UserContext(), evt); err != nil {
		h.deps.Logger.Error("publish call event failed",
			zap.String("event", evt.Event),
			zap.String("call_id", evt.Call.CallID),
			zap.Error(err))
		return fiber.NewError(http.StatusServiceUnavailable, "event stream unavailable")
	}

	return ctx.SendStatus(http.StatusNoContent)
}
