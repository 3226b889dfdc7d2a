// Package http implements telephony.Provider against a JSON-over-HTTP voice agent API.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/telephony"
	apperrors "github.com/acme/lead-engagement/pkg/errors"
	"github.com/acme/lead-engagement/pkg/httpx"
)

// Config wires the provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Agents maps a job type to the agent id that runs its script.
	Agents map[string]string
}

// Provider places calls through the provider's REST API.
type Provider struct {
	baseURL string
	apiKey  string
	agents  map[string]string
	client  *nethttp.Client
}

// NewProvider constructs a Provider.
func NewProvider(cfg Config) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		agents:  cfg.Agents,
		client:  &nethttp.Client{Timeout: timeout},
	}
}

type createCallRequest struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	Metadata         map[string]string `json:"metadata"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type createCallResponse struct {
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
}

// PlaceCall implements telephony.Provider.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallRef, error) {
	agent := req.AgentOverride
	if agent == "" {
		agent = p.agents[string(req.Metadata.JobType)]
	}

	body := createCallRequest{
		FromNumber:      req.FromNumber,
		ToNumber:        req.ToNumber,
		OverrideAgentID: agent,
		Metadata: map[string]string{
			"lead_id":  req.Metadata.LeadID.String(),
			"job_type": string(req.Metadata.JobType),
		},
		DynamicVariables: req.DynamicVariables,
	}

	var out createCallResponse
	if err := p.do(ctx, nethttp.MethodPost, "/create-phone-call", body, &out); err != nil {
		return telephony.CallRef{}, err
	}
	if out.CallID == "" {
		return telephony.CallRef{}, fmt.Errorf("%w: provider: response without call id", apperrors.ErrTransient)
	}

	status := domain.CallStatusRegistered
	if out.CallStatus != "" {
		status = domain.CallStatus(out.CallStatus)
	}
	return telephony.CallRef{ExternalCallID: out.CallID, Status: status}, nil
}

// UpdatePrompt implements telephony.Provider.
func (p *Provider) UpdatePrompt(ctx context.Context, jobType domain.JobType, prompt string) error {
	agent, ok := p.agents[string(jobType)]
	if !ok || agent == "" {
		return fmt.Errorf("%w: provider: no agent configured for %s", apperrors.ErrValidation, jobType)
	}
	payload := map[string]string{"general_prompt": prompt}
	return p.do(ctx, nethttp.MethodPatch, "/update-agent/"+url.PathEscape(agent), payload, nil)
}

func (p *Provider) do(ctx context.Context, method, path string, in, out any) error {
	op := "provider: " + strings.ToLower(method) + " " + path

	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	req, err := nethttp.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
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
		return fmt.Errorf("%w: %s: decode: %v", apperrors.ErrTransient, op, err)
	}
	return nil
}
