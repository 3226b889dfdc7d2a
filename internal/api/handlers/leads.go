package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
)

type callNowRequest struct {
	JobType string `json:"jobType"`
}

type callResponse struct {
	ID               uuid.UUID         `json:"id"`
	ExternalCallID   string            `json:"externalCallId"`
	LeadID           uuid.UUID         `json:"leadId"`
	JobType          domain.JobType    `json:"jobType"`
	Status           domain.CallStatus `json:"status"`
	StartTimestamp   *time.Time        `json:"startTimestamp,omitempty"`
	EndTimestamp     *time.Time        `json:"endTimestamp,omitempty"`
	DurationMs       int64             `json:"durationMs,omitempty"`
	DisconnectReason string            `json:"disconnectReason,omitempty"`
	OutcomeAppliedAt *time.Time        `json:"outcomeAppliedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

type callPage struct {
	Calls      []callResponse `json:"calls"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// callNow places an immediate call for a lead, bypassing the schedule window.
func (h *HandlerSet) callNow(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid lead id")
	}

	var req callNowRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}
	jobType := domain.JobTypeInitial
	if req.JobType != "" {
		if jobType, err = parseJobType(req.JobType); err != nil {
			return err
		}
	}

	record, err := h.deps.Calls.CallNow(ctx.UserContext(), id, jobType)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(toCallResponse(record))
}

// listLeadCalls pages through the calls placed to a lead.
func (h *HandlerSet) listLeadCalls(ctx *fiber.Ctx) error {
	if h.deps.History == nil {
		return fiber.NewError(http.StatusNotImplemented, "call history unavailable")
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid lead id")
	}
	state, err := decodeCursor(ctx.Query("cursor"))
	if err != nil {
		return translateError(err)
	}
	limit := ctx.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		return fiber.NewError(http.StatusBadRequest, "limit must be between 1 and 500")
	}

	records, next, err := h.deps.History.ListCallsByLead(ctx.UserContext(), id, limit, state)
	if err != nil {
		return translateError(err)
	}
	page := callPage{Calls: make([]callResponse, 0, len(records)), NextCursor: encodeCursor(next)}
	for i := range records {
		page.Calls = append(page.Calls, toCallResponse(&records[i]))
	}
	return ctx.Status(http.StatusOK).JSON(page)
}

func toCallResponse(call *domain.CallRecord) callResponse {
	return callResponse{
		ID:               call.ID,
		ExternalCallID:   call.ExternalCallID,
		LeadID:           call.LeadID,
		JobType:          call.JobType,
		Status:           call.Status,
		StartTimestamp:   call.StartTimestamp,
		EndTimestamp:     call.EndTimestamp,
		DurationMs:       call.DurationMs,
		DisconnectReason: call.DisconnectReason,
		OutcomeAppliedAt: call.OutcomeAppliedAt,
		CreatedAt:        call.CreatedAt,
	}
}
