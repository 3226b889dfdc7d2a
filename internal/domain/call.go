package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobType selects the conversation script and eligibility rule of a call.
type JobType string

const (
	JobTypeInitial    JobType = "initial"
	JobTypeReschedule JobType = "reschedule"
	JobTypeReminder   JobType = "reminder"
)

// JobTypes lists every job type in dispatch order.
var JobTypes = []JobType{JobTypeInitial, JobTypeReschedule, JobTypeReminder}

// Valid reports whether j is a known job type.
func (j JobType) Valid() bool {
	switch j {
	case JobTypeInitial, JobTypeReschedule, JobTypeReminder:
		return true
	}
	return false
}

// ReleasedStatus is the status a lead returns to when the calling lock is released
// after a completed call of this job type.
func (j JobType) ReleasedStatus() LeadStatus {
	if j == JobTypeReminder {
		return LeadStatusReminder
	}
	return LeadStatusContacted
}

// CallStatus enumerates lifecycle stages reported for a call.
type CallStatus string

const (
	CallStatusRegistered CallStatus = "registered"
	CallStatusOngoing    CallStatus = "ongoing"
	CallStatusEnded      CallStatus = "ended"
	CallStatusError      CallStatus = "error"
)

// CallRecord is one placed call. Owned by its lead.
type CallRecord struct {
	ID               uuid.UUID
	ExternalCallID   string
	LeadID           uuid.UUID
	JobType          JobType
	// LeadStatusBefore is the lead's status when it was claimed for this call.
	LeadStatusBefore LeadStatus
	Status           CallStatus
	StartTimestamp   *time.Time
	EndTimestamp     *time.Time
	DurationMs       int64
	DisconnectReason string
	Cost             float64
	OutcomeAppliedAt *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ReleasedStatus is the status the lead returns to once this call completes. Reminder
// calls restore the status the lead was claimed from.
func (c CallRecord) ReleasedStatus() LeadStatus {
	if c.JobType == JobTypeReminder && c.LeadStatusBefore != "" && c.LeadStatusBefore != LeadStatusCalling {
		return c.LeadStatusBefore
	}
	return c.JobType.ReleasedStatus()
}

// TranscriptTurn is a single utterance in a call.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript holds what was said on a call.
type Transcript struct {
	ExternalCallID string
	Text           string
	Turns          []TranscriptTurn
	UpdatedAt      time.Time
}

// Empty reports whether the transcript carries no usable text.
func (t *Transcript) Empty() bool {
	if t == nil {
		return true
	}
	if t.Text != "" {
		return false
	}
	for _, turn := range t.Turns {
		if turn.Content != "" {
			return false
		}
	}
	return true
}

// RicherThan reports whether t carries more information than other.
func (t *Transcript) RicherThan(other *Transcript) bool {
	if other == nil {
		return !t.Empty()
	}
	if len(t.Text) != len(other.Text) {
		return len(t.Text) > len(other.Text)
	}
	return len(t.Turns) > len(other.Turns)
}

// FullText returns the raw text, or the turns joined as "role: content" lines.
func (t *Transcript) FullText() string {
	if t == nil {
		return ""
	}
	if t.Text != "" {
		return t.Text
	}
	var out []byte
	for _, turn := range t.Turns {
		if turn.Content == "" {
			continue
		}
		out = append(out, turn.Role...)
		out = append(out, ": "...)
		out = append(out, turn.Content...)
		out = append(out, '\n')
	}
	return string(out)
}
