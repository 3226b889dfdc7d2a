package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/pkg/httpx"
)

// HTTPClient talks to a JSON CRM API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient constructs an HTTPClient.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type crmLead struct {
	ID     string `json:"id,omitempty"`
	Phone  string `json:"phone"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
}

// FindByPhone implements Client.
func (c *HTTPClient) FindByPhone(ctx context.Context, phone string) (string, error) {
	var out struct {
		Data []crmLead `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/leads?phone="+url.QueryEscape(phone), nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", nil
	}
	return out.Data[0].ID, nil
}

// CreateLead implements Client.
func (c *HTTPClient) CreateLead(ctx context.Context, lead domain.Lead) (string, error) {
	var out crmLead
	in := crmLead{Phone: lead.Phone, Email: lead.Email, Status: string(lead.Status)}
	if err := c.do(ctx, http.MethodPost, "/leads", in, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpdateStatus implements Client.
func (c *HTTPClient) UpdateStatus(ctx context.Context, crmID string, status domain.LeadStatus) error {
	if crmID == "" {
		return nil
	}
	return c.do(ctx, http.MethodPatch, "/leads/"+url.PathEscape(crmID), crmLead{Status: string(status)}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	op := "crm: " + strings.ToLower(method) + " " + strings.SplitN(path, "?", 2)[0]

	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return httpx.TransportError(op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := httpx.StatusError(op, resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
