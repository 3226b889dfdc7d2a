package domain

// ContactMethod is the caller's preferred follow-up channel as extracted from a transcript.
type ContactMethod string

const (
	ContactMethodEmail    ContactMethod = "email"
	ContactMethodPhone    ContactMethod = "phone"
	ContactMethodBoth     ContactMethod = "both"
	ContactMethodSchedule ContactMethod = "schedule"
	ContactMethodBusy     ContactMethod = "busy"
	ContactMethodNone     ContactMethod = "none"
)

// ContactInfo is contact data the caller dictated during the call.
type ContactInfo struct {
	Email string
	Phone string
}

// Intent is the structured interpretation of a call transcript.
type Intent struct {
	PreferredMethod ContactMethod
	ContactInfo     ContactInfo
	ScheduleDays    *int
	SpecificTime    *TimeOfDay
	ResentLink      bool
	IsBusy          bool
	NotInterested   bool
}
