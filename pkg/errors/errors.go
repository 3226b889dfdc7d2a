package errors

import "errors"

// Sentinels for domain errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTransient marks collaborator failures worth trying again on a later tick
	// (network errors, 5xx, timeouts).
	ErrTransient = errors.New("transient collaborator error")
	// ErrPermanent marks collaborator rejections that will not succeed on retry.
	ErrPermanent = errors.New("permanent collaborator error")
	// ErrParse marks a language-model response that could not be decoded.
	ErrParse = errors.New("unparseable model response")
	// ErrUnknownLead marks an event that references a lead we do not track.
	ErrUnknownLead = errors.New("unknown lead")
	// ErrDuplicateEvent marks an event absorbed by the dedup window.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsPermanent reports whether err should flag the lead as failed instead of being retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || errors.Is(err, ErrValidation)
}
