package scylla

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/lead-engagement/internal/domain"
)

func TestTurnsEncoding(t *testing.T) {
	turns := []domain.TranscriptTurn{{Role: "agent", Content: "Hi"}, {Role: "user", Content: "Call me Friday"}}
	raw, err := encodeTurns(turns)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := decodeTurns(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(back) != 2 || back[1].Content != "Call me Friday" {
		t.Fatalf("unexpected turns %+v", back)
	}

	if raw, _ := encodeTurns(nil); raw != "" {
		t.Fatalf("empty turns should encode to empty string, got %q", raw)
	}
	if _, err := decodeTurns("[{"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCallRowToDomain(t *testing.T) {
	leadID := uuid.New()
	zero := time.Time{}
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	rec, err := callRow{
		callID:       "call_1",
		leadID:       leadID.String(),
		jobType:      "reminder",
		statusBefore: "contacted",
		status:       "ended",
		start:        &start,
		end:          &zero,
	}.toDomain()
	if err != nil {
		t.Fatalf("to domain: %v", err)
	}
	if rec.LeadID != leadID || rec.JobType != domain.JobTypeReminder || rec.LeadStatusBefore != domain.LeadStatusContacted {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.StartTimestamp == nil || !rec.StartTimestamp.Equal(start) {
		t.Fatalf("start timestamp lost")
	}
	if rec.EndTimestamp != nil || rec.OutcomeAppliedAt != nil {
		t.Fatalf("zero timestamps should map to nil")
	}

	if _, err := (callRow{callID: "x", leadID: "not-a-uuid"}).toDomain(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBucketDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := bucketDate(time.Date(2026, 10, 14, 22, 30, 0, 0, loc))
	if !got.Equal(time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bucket %v", got)
	}
}
