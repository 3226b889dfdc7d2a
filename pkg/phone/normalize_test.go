package phone

import (
	"errors"
	"testing"

	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

func TestNormalizeE164(t *testing.T) {
	got, err := NormalizeE164("(201) 555-0123", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+12015550123" {
		t.Fatalf("expected +12015550123, got %s", got)
	}

	got, err = NormalizeE164("+44 121 234 5678", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+441212345678" {
		t.Fatalf("expected +441212345678, got %s", got)
	}
}

func TestNormalizeE164Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-number", "123"} {
		if _, err := NormalizeE164(in, "US"); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("expected validation error for %q, got %v", in, err)
		}
	}
}
