package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acme/lead-engagement/pkg/httpx"
)

// HTTPSMSSender posts messages to a Twilio-compatible Messages endpoint.
type HTTPSMSSender struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// NewHTTPSMSSender creates an HTTPSMSSender.
func NewHTTPSMSSender(baseURL, accountSID, authToken, from string, timeout time.Duration) *HTTPSMSSender {
	return &HTTPSMSSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     &http.Client{Timeout: timeout},
	}
}

// SendSMS implements SMSSender.
func (s *HTTPSMSSender) SendSMS(ctx context.Context, toPhone, body string) error {
	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return httpx.TransportError("sms: send", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return httpx.StatusError("sms: send", resp.StatusCode, respBody)
}
