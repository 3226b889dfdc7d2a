// Package mock provides an in-process telephony.Provider for local runs and tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
	"github.com/acme/lead-engagement/internal/telephony"
)

// Provider records every request and answers with a generated call id.
type Provider struct {
	mu       sync.Mutex
	calls    []telephony.CallRequest
	prompts  map[domain.JobType]string
	failures map[string]error

	// OnPlace, when set, runs before a call is accepted.
	OnPlace func(req telephony.CallRequest)
}

// NewProvider constructs a mock provider.
func NewProvider() *Provider {
	return &Provider{
		prompts:  make(map[domain.JobType]string),
		failures: make(map[string]error),
	}
}

// FailFor makes calls to toNumber return err.
func (p *Provider) FailFor(toNumber string, err error) {
	p.mu.Lock()
	p.failures[toNumber] = err
	p.mu.Unlock()
}

// PlaceCall implements telephony.Provider.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallRef, error) {
	if err := ctx.Err(); err != nil {
		return telephony.CallRef{}, err
	}
	if p.OnPlace != nil {
		p.OnPlace(req)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if err, ok := p.failures[req.ToNumber]; ok {
		return telephony.CallRef{}, err
	}
	return telephony.CallRef{
		ExternalCallID: fmt.Sprintf("mock_%s", uuid.NewString()),
		Status:         domain.CallStatusRegistered,
	}, nil
}

// UpdatePrompt implements telephony.Provider.
func (p *Provider) UpdatePrompt(_ context.Context, jobType domain.JobType, prompt string) error {
	p.mu.Lock()
	p.prompts[jobType] = prompt
	p.mu.Unlock()
	return nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []telephony.CallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]telephony.CallRequest(nil), p.calls...)
}

// Prompt returns the last prompt pushed for jobType.
func (p *Provider) Prompt(jobType domain.JobType) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[jobType]
}
