package queue

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
)

// Call provider webhook event names.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// CallEvent is a provider webhook as carried on the call event topic.
type CallEvent struct {
	Event      string      `json:"event"`
	Call       CallPayload `json:"call"`
	ReceivedAt time.Time   `json:"received_at"`
}

// CallPayload holds the call fields read from provider webhooks.
type CallPayload struct {
	CallID              string                  `json:"call_id"`
	Metadata            CallEventMetadata       `json:"metadata"`
	Transcript          string                  `json:"transcript"`
	TranscriptObject    []domain.TranscriptTurn `json:"transcript_object"`
	StartTimestamp      int64                   `json:"start_timestamp"`
	EndTimestamp        int64                   `json:"end_timestamp"`
	DurationMs          int64                   `json:"duration_ms"`
	DisconnectionReason string                  `json:"disconnection_reason"`
	CallCost            *CallCost               `json:"call_cost,omitempty"`
	CallStatus          string                  `json:"call_status"`
}

// CallEventMetadata is the metadata attached when the call was placed.
type CallEventMetadata struct {
	LeadID  string `json:"lead_id"`
	JobType string `json:"job_type"`
}

// CallCost is the provider's billing summary.
type CallCost struct {
	CombinedCost float64 `json:"combined_cost"`
}

// IsCompletion reports whether the event closes the call.
func (e CallEvent) IsCompletion() bool {
	return e.Event == EventCallEnded || e.Event == EventCallAnalyzed
}

// LeadID parses the lead id from metadata.
func (e CallEvent) LeadID() (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(e.Call.Metadata.LeadID))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// JobType returns the job type from metadata, defaulting to initial.
func (e CallEvent) JobType() domain.JobType {
	jt := domain.JobType(e.Call.Metadata.JobType)
	if !jt.Valid() {
		return domain.JobTypeInitial
	}
	return jt
}

// Transcript builds the domain transcript carried by the event, or nil when it has none.
func (e CallEvent) Transcript() *domain.Transcript {
	tr := &domain.Transcript{
		ExternalCallID: e.Call.CallID,
		Text:           e.Call.Transcript,
		Turns:          e.Call.TranscriptObject,
	}
	if tr.Empty() {
		return nil
	}
	return tr
}

// StartTime converts the millisecond start timestamp.
func (p CallPayload) StartTime() *time.Time {
	return msTime(p.StartTimestamp)
}

// EndTime converts the millisecond end timestamp.
func (p CallPayload) EndTime() *time.Time {
	return msTime(p.EndTimestamp)
}

func msTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
