package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/followup"
)

type jobScheduleResponse struct {
	JobType      domain.JobType `json:"jobType"`
	Enabled      bool           `json:"enabled"`
	StartTime    *string        `json:"startTime"`
	EndTime      *string        `json:"endTime"`
	SelectedDays []string       `json:"selectedDays"`
	CallLimit    int            `json:"callLimit"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func (h *HandlerSet) listSchedules(ctx *fiber.Ctx) error {
	schedules, err := h.deps.Schedules.List(ctx.UserContext())
	if err != nil {
		return translateError(err)
	}
	out := make([]jobScheduleResponse, 0, len(schedules))
	for i := range schedules {
		out = append(out, toScheduleResponse(&schedules[i]))
	}
	return ctx.Status(http.StatusOK).JSON(out)
}

func (h *HandlerSet) getSchedule(ctx *fiber.Ctx) error {
	jobType, err := parseJobType(ctx.Params("jobType"))
	if err != nil {
		return err
	}
	schedule, err := h.deps.Schedules.Get(ctx.UserContext(), jobType)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toScheduleResponse(schedule))
}

func (h *HandlerSet) putSchedule(ctx *fiber.Ctx) error {
	jobType, err := parseJobType(ctx.Params("jobType"))
	if err != nil {
		return err
	}
	var in followup.JobScheduleInput
	if err := ctx.BodyParser(&in); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	schedule, err := h.deps.Editor.UpsertJobSchedule(ctx.UserContext(), jobType, in)
	if err != nil {
		return translateError(err)
	}
	return ctx.Status(http.StatusOK).JSON(toScheduleResponse(schedule))
}

func parseJobType(raw string) (domain.JobType, error) {
	jobType := domain.JobType(strings.ToLower(raw))
	if !jobType.Valid() {
		return "", fiber.NewError(http.StatusBadRequest, "unknown job type")
	}
	return jobType, nil
}

func toScheduleResponse(s *domain.JobSchedule) jobScheduleResponse {
	resp := jobScheduleResponse{
		JobType:      s.JobType,
		Enabled:      s.Enabled,
		SelectedDays: make([]string, 0, len(s.SelectedDays)),
		CallLimit:    s.CallLimit,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.StartTime != nil {
		v := s.StartTime.String()
		resp.StartTime = &v
	}
	if s.EndTime != nil {
		v := s.EndTime.String()
		resp.EndTime = &v
	}
	for _, d := range s.SelectedDays {
		resp.SelectedDays = append(resp.SelectedDays, strings.ToLower(d.String()))
	}
	return resp
}
