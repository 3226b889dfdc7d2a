package interpreter

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	apperrors "github.com/acme/lead-engagement/pkg/errors"
)

// GeminiModel implements Model on the Gemini API.
type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiModel creates a Gemini-backed model.
func NewGeminiModel(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &GeminiModel{client: client, model: model, timeout: timeout}, nil
}

// Complete implements Model. Answers are requested as JSON at temperature 0.
func (g *GeminiModel) Complete(ctx context.Context, instruction, input string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(input), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", apperrors.ErrTransient, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini: empty response", apperrors.ErrParse)
	}
	return text, nil
}
