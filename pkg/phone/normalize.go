// Package phone normalizes dialable numbers.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "US"

// NormalizeE164 formats input as E.164. Numbers that cannot be parsed or are not
// valid for the region return a validation error.
func NormalizeE164(input, region string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty phone number", apperrors.ErrValidation)
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return "", fmt.Errorf("%w: parse phone %q: %v", apperrors.ErrValidation, trimmed, err)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("%w: invalid phone %q", apperrors.ErrValidation, trimmed)
	}
	return phonenumbers.Format(number, phonenumbers.E164), nil
}
