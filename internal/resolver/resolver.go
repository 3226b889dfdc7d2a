// Package resolver maps an interpreted call outcome onto lead changes and follow-up
// side effects. Everything here is pure: the caller supplies the clock reading and
// applies the returned Decision.
package resolver

import (
	"time"

	"github.com/acme/lead-engagement/internal/domain"
)

// Effect is an outbound action requested by a decision.
type Effect string

const (
	EffectSendEmail Effect = "send_email"
	EffectSendSMS   Effect = "send_sms"
)

// Branch names the scheduling rule that produced a decision.
const (
	BranchBusy          = "busy"
	BranchSchedule      = "schedule"
	BranchBoth          = "both"
	BranchEmail         = "email"
	BranchPhone         = "phone"
	BranchNotInterested = "not-interested"
	BranchFallback      = "fallback"
)

// Params holds the tunables of date computation.
type Params struct {
	Location             *time.Location
	FallbackHour         int
	BusyOffsetDays       int
	RescheduleOffsetDays int
	// RescheduleStart is the reschedule job's configured start time, if any.
	RescheduleStart *domain.TimeOfDay
}

// DefaultParams matches the service defaults.
func DefaultParams() Params {
	return Params{Location: time.UTC, FallbackHour: 10, BusyOffsetDays: 2, RescheduleOffsetDays: 2}
}

func (p Params) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Decision is the outcome to apply to a lead.
type Decision struct {
	ScheduledCallbackDate *time.Time
	Status                *domain.LeadStatus
	Email                 *string
	Phone                 *string
	LinkSend              bool
	Effects               []Effect
	Branch                string
}

// Has reports whether the decision requests effect.
func (d Decision) Has(effect Effect) bool {
	for _, e := range d.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// LeadUpdate converts the decision into a repository update.
func (d Decision) LeadUpdate() domain.LeadUpdate {
	u := domain.LeadUpdate{
		Status:                d.Status,
		ScheduledCallbackDate: d.ScheduledCallbackDate,
		Email:                 d.Email,
		Phone:                 d.Phone,
	}
	if d.LinkSend {
		t := true
		u.LinkSend = &t
	}
	return u
}

// Resolve applies the precedence rules to intent. The scheduling branch is the first
// of busy, schedule, both, email/phone and fallback that matches; notInterested and
// resentLink are evaluated on their own.
func Resolve(p Params, jobType domain.JobType, intent domain.Intent, lead domain.Lead, now time.Time) Decision {
	now = now.In(p.loc())
	var d Decision

	switch {
	case intent.IsBusy || intent.PreferredMethod == domain.ContactMethodBusy:
		d.Branch = BranchBusy
		d.setDate(busyDate(p, now))
	case intent.PreferredMethod == domain.ContactMethodSchedule && intent.ScheduleDays != nil:
		d.Branch = BranchSchedule
		d.setDate(scheduleDate(now, *intent.ScheduleDays, intent.SpecificTime))
	case intent.NotInterested:
		d.Branch = BranchNotInterested
	case intent.PreferredMethod == domain.ContactMethodBoth:
		d.Branch = BranchBoth
		d.storeEmail(intent.ContactInfo.Email)
		d.storePhone(intent.ContactInfo.Phone)
		d.sendEmail(lead)
		d.sendSMS(lead)
	case intent.PreferredMethod == domain.ContactMethodEmail:
		d.Branch = BranchEmail
		d.storeEmail(intent.ContactInfo.Email)
		d.sendEmail(lead)
	case intent.PreferredMethod == domain.ContactMethodPhone:
		d.Branch = BranchPhone
		d.storePhone(intent.ContactInfo.Phone)
		d.sendSMS(lead)
	default:
		d.Branch = BranchFallback
		d.setDate(fallbackDate(p, now))
	}

	if intent.ResentLink {
		if lead.HasEmail() {
			d.addEffect(EffectSendEmail)
		}
		if lead.HasPhone() {
			d.addEffect(EffectSendSMS)
		}
	}

	d.settleStatus(jobType, intent.NotInterested)
	return d
}

// Fallback is the decision taken when no usable intent exists.
func Fallback(p Params, jobType domain.JobType, now time.Time) Decision {
	d := Decision{Branch: BranchFallback}
	d.setDate(fallbackDate(p, now.In(p.loc())))
	d.settleStatus(jobType, false)
	return d
}

func (d *Decision) settleStatus(jobType domain.JobType, notInterested bool) {
	if len(d.Effects) > 0 {
		d.LinkSend = true
	}

	var status domain.LeadStatus
	switch {
	case notInterested:
		status = domain.LeadStatusNotInterested
	case jobType == domain.JobTypeReminder:
		// reminder calls never move the lead backwards
		return
	case d.ScheduledCallbackDate != nil:
		status = domain.LeadStatusScheduled
	case d.LinkSend:
		status = domain.LeadStatusReminder
	default:
		return
	}
	d.Status = &status
}

func (d *Decision) setDate(t time.Time) {
	d.ScheduledCallbackDate = &t
}

func (d *Decision) storeEmail(email string) {
	if email != "" {
		d.Email = &email
	}
}

func (d *Decision) storePhone(phone string) {
	if phone != "" {
		d.Phone = &phone
	}
}

// sendEmail requests a verification email when an address is known, either on
// file or just dictated.
func (d *Decision) sendEmail(lead domain.Lead) {
	if d.Email != nil || lead.HasEmail() {
		d.addEffect(EffectSendEmail)
	}
}

func (d *Decision) sendSMS(lead domain.Lead) {
	if d.Phone != nil || lead.HasPhone() {
		d.addEffect(EffectSendSMS)
	}
}

func (d *Decision) addEffect(e Effect) {
	if !d.Has(e) {
		d.Effects = append(d.Effects, e)
	}
}
