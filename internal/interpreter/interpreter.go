// Package interpreter turns a call transcript into a structured follow-up intent
// using a language model.
package interpreter

import (
	"context"
	"fmt"
	"strings"

	"github.com/acme/lead-engagement/internal/domain"
)

// Model is a single-shot text completion collaborator.
type Model interface {
	Complete(ctx context.Context, instruction, input string) (string, error)
}

// Instruction is sent with every transcript. The model must answer with one JSON object.
const Instruction = `You analyse the transcript of an outbound sales call and extract what the
customer wants to happen next. Respond with a single JSON object and nothing else:

{
  "preferredMethod": "email" | "phone" | "both" | "schedule" | "busy" | "none",
  "contactInfo": {"email": string, "phone": string},
  "scheduleDays": number,
  "specificTime": "HH:MM",
  "resentLink": boolean,
  "isBusy": boolean,
  "notInterested": boolean
}

Rules:
- "schedule" means the customer asked to be called back after a number of days; put that number in scheduleDays.
- specificTime is a 24-hour time the customer asked for, omit it otherwise.
- contactInfo holds only an email or phone number the customer dictated during the call.
- resentLink is true when the customer asked for the link to be sent again.
- isBusy is true when the customer could not talk right now.
- notInterested is true when the customer declined.`

// Interpreter extracts an Intent from transcripts.
type Interpreter struct {
	model Model
}

// New constructs an Interpreter.
func New(model Model) *Interpreter {
	return &Interpreter{model: model}
}

// Interpret sends the transcript to the model and parses the answer.
func (i *Interpreter) Interpret(ctx context.Context, transcript string) (domain.Intent, error) {
	if strings.TrimSpace(transcript) == "" {
		return domain.Intent{}, fmt.Errorf("interpreter: empty transcript")
	}

	raw, err := i.model.Complete(ctx, Instruction, transcript)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("interpreter: model: %w", err)
	}

	intent, err := Parse(raw)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("interpreter: %w", err)
	}
	return intent, nil
}
