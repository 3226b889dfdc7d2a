package domain

import (
	"time"

	"github.com/google/uuid"
)

// LeadStatus enumerates the engagement states of a lead.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusCalling       LeadStatus = "calling"
	LeadStatusContacted     LeadStatus = "contacted"
	LeadStatusScheduled     LeadStatus = "scheduled"
	LeadStatusReminder      LeadStatus = "reminder"
	LeadStatusNotInterested LeadStatus = "not-interested"
	LeadStatusCompleted     LeadStatus = "completed"
	LeadStatusError         LeadStatus = "error"
)

// Lead is a prospect being worked through the call jobs.
type Lead struct {
	ID                    uuid.UUID
	Phone                 string
	Email                 string
	Status                LeadStatus
	Contacted             bool
	ScheduledCallbackDate *time.Time
	ReminderSentAt        *time.Time
	LinkClicked           bool
	FormSubmitted         bool
	LinkSend              bool
	LastCallID            string
	CRMID                 string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// HasEmail reports whether an email is on file.
func (l *Lead) HasEmail() bool { return l.Email != "" }

// HasPhone reports whether a phone number is on file.
func (l *Lead) HasPhone() bool { return l.Phone != "" }

// LeadUpdate carries the fields changed when a call outcome is applied. Nil fields are left untouched.
type LeadUpdate struct {
	Status                *LeadStatus
	Contacted             *bool
	ScheduledCallbackDate *time.Time
	Email                 *string
	Phone                 *string
	LinkSend              *bool
}

// Empty reports whether the update changes nothing.
func (u LeadUpdate) Empty() bool {
	return u.Status == nil && u.Contacted == nil && u.ScheduledCallbackDate == nil &&
		u.Email == nil && u.Phone == nil && u.LinkSend == nil
}

// Apply copies the set fields onto lead.
func (u LeadUpdate) Apply(lead *Lead) {
	if u.Status != nil {
		lead.Status = *u.Status
	}
	if u.Contacted != nil {
		lead.Contacted = *u.Contacted
	}
	if u.ScheduledCallbackDate != nil {
		t := *u.ScheduledCallbackDate
		lead.ScheduledCallbackDate = &t
	}
	if u.Email != nil {
		lead.Email = *u.Email
	}
	if u.Phone != nil {
		lead.Phone = *u.Phone
	}
	if u.LinkSend != nil {
		lead.LinkSend = *u.LinkSend
	}
}
