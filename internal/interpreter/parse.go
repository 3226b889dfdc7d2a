package interpreter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/acme/lead-engagement/internal/domain"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

type rawIntent struct {
	PreferredMethod string `json:"preferredMethod"`
	ContactInfo     struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"contactInfo"`
	ScheduleDays  flexInt `json:"scheduleDays"`
	SpecificTime  string  `json:"specificTime"`
	ResentLink    bool    `json:"resentLink"`
	IsBusy        bool    `json:"isBusy"`
	NotInterested bool    `json:"notInterested"`
}

// flexInt accepts 3, 3.0 and "3".
type flexInt struct {
	value *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		// unreadable day counts are dropped, the rest of the answer is still useful
		return nil
	}
	v := int(n)
	f.value = &v
	return nil
}

// Parse decodes a model answer. It tries the whole text first and then the first
// balanced {...} block, so answers wrapped in prose or code fences still parse.
func Parse(raw string) (domain.Intent, error) {
	var r rawIntent
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		block, ok := firstObject(raw)
		if !ok {
			return domain.Intent{}, fmt.Errorf("%w: no JSON object in response", apperrors.ErrParse)
		}
		r = rawIntent{}
		if err := json.Unmarshal([]byte(block), &r); err != nil {
			return domain.Intent{}, fmt.Errorf("%w: %v", apperrors.ErrParse, err)
		}
	}
	return r.toIntent(), nil
}

func (r rawIntent) toIntent() domain.Intent {
	intent := domain.Intent{
		PreferredMethod: normalizeMethod(r.PreferredMethod),
		ContactInfo: domain.ContactInfo{
			Email: strings.TrimSpace(r.ContactInfo.Email),
			Phone: strings.TrimSpace(r.ContactInfo.Phone),
		},
		ResentLink:    r.ResentLink,
		IsBusy:        r.IsBusy,
		NotInterested: r.NotInterested,
	}
	if r.ScheduleDays.value != nil && *r.ScheduleDays.value >= 0 {
		intent.ScheduleDays = r.ScheduleDays.value
	}
	if tod, err := domain.ParseTimeOfDay(r.SpecificTime); err == nil && r.SpecificTime != "" {
		intent.SpecificTime = &tod
	}
	return intent
}

func normalizeMethod(s string) domain.ContactMethod {
	switch m := domain.ContactMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case domain.ContactMethodEmail, domain.ContactMethodPhone, domain.ContactMethodBoth,
		domain.ContactMethodSchedule, domain.ContactMethodBusy:
		return m
	}
	return domain.ContactMethodNone
}

// firstObject returns the first brace-balanced substring, ignoring braces inside strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
