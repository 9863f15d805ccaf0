package reports

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/policy"
)

var (
	ErrMissingCandidate = errors.New("candidate id is required")
	ErrMissingReport    = errors.New("session has no report")
	ErrListUnsupported  = errors.New("store cannot list reports")
)

// TranscriptLine is a redacted transcript entry kept alongside a report.
type TranscriptLine struct {
	Role    string    `json:"role"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Record is one persisted assessment.
type Record struct {
	ID          string             `json:"id"`
	CandidateID string             `json:"candidate_id"`
	SessionID   string             `json:"session_id"`
	Topic       string             `json:"topic"`
	Payload     assessment.Payload `json:"payload"`
	Transcript  []TranscriptLine   `json:"transcript,omitempty"`
	PIIRedacted bool               `json:"pii_redacted"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Result is the outcome surfaced to callers: success, or failure with a message.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Store persists assessment records.
type Store interface {
	SaveReport(ctx context.Context, record Record) error
	ListByCandidate(ctx context.Context, candidateID string, limit int) ([]Record, error)
	Close() error
}

// NewRecord builds a record from a reported session snapshot. Transcript text
// is passed through PII and secret redaction before it is kept.
func NewRecord(candidateID string, snap discussion.Snapshot) (Record, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return Record{}, ErrMissingCandidate
	}
	if snap.Report == nil {
		return Record{}, ErrMissingReport
	}

	rec := Record{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		SessionID:   snap.SessionID,
		Topic:       snap.State.Topic,
		Payload:     snap.Report.ToPayload(snap.State.Topic),
		CreatedAt:   time.Now().UTC(),
	}
	for _, u := range snap.Transcript {
		text, changed := policy.Redact(u.Text)
		rec.PIIRedacted = rec.PIIRedacted || changed
		rec.Transcript = append(rec.Transcript, TranscriptLine{
			Role:    string(u.Speaker.Role),
			Speaker: u.Speaker.Name,
			Text:    text,
			At:      u.EmittedAt,
		})
	}
	return rec, nil
}

// Persist saves record and folds the outcome into a Result.
func Persist(ctx context.Context, store Store, record Record) Result {
	if err := store.SaveReport(ctx, record); err != nil {
		return Result{OK: false, Error: err.Error()}
	}
	return Result{OK: true}
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}

func fillDefaults(record *Record) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
}
