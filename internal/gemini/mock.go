package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
)

// MockClient returns deterministic replies shaped like real model output,
// so the whole discussion flow runs without network access.
type MockClient struct {
	calls atomic.Int64
}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Calls() int64 { return m.calls.Load() }

func (m *MockClient) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	n := m.calls.Add(1)

	switch req.Purpose {
	case PurposeTalkingPoints:
		points := make([]string, 10)
		for i := range points {
			points[i] = fmt.Sprintf("Consideration %d for this angle", i+1)
		}
		raw, _ := json.Marshal(points)
		return "Here are the points:\n```json\n" + string(raw) + "\n```", nil
	case PurposeReport:
		return mockReport, nil
	default:
		last := strings.TrimSpace(LastUserText(req.Contents))
		if len(last) > 80 {
			last = last[:80]
		}
		return fmt.Sprintf("Reply %d. Building on the discussion so far, I'd weigh this carefully: %s", n, last), nil
	}
}

const mockReport = `{
  "communication": {"score": 7, "strengths": ["Clear framing"], "areasForImprovement": ["Be more concise"], "tip": "Lead with your main point."},
  "empathy": {"score": 8, "strengths": ["Acknowledged other views"], "areasForImprovement": [], "tip": "Name the concern you heard before answering it."},
  "collaboration": {"score": 6, "strengths": ["Built on others' ideas"], "areasForImprovement": ["Invite quieter voices"], "tip": "Ask a follow-up question."},
  "adaptivity": {"score": 9, "strengths": ["Adjusted when challenged"], "areasForImprovement": [], "tip": "Keep testing your assumptions."}
}`
