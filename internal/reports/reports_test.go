package reports

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/personas"
)

func reportedSnapshot() discussion.Snapshot {
	report := assessment.Report{
		Communication: assessment.Dimension{Score: 7, Strengths: []string{"clear"}, Tip: "slow down"},
		Empathy:       assessment.Dimension{Score: 8},
		Collaboration: assessment.Dimension{Score: 6},
		Adaptivity:    assessment.Dimension{Score: 9},
	}
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	return discussion.Snapshot{
		SessionID: "s-1",
		State:     discussion.State{Phase: discussion.PhaseReported, Topic: "hybrid work"},
		Transcript: []discussion.Utterance{
			{Speaker: discussion.SystemParticipant(), Text: "Let's discuss: hybrid work", EmittedAt: now},
			{Speaker: discussion.AgentParticipant(personas.Defaults()[0]), Text: "Data first.", EmittedAt: now},
			{Speaker: discussion.HumanParticipant("Dana"), Text: "Reach me at dana@example.com", EmittedAt: now},
		},
		Report: &report,
	}
}

func TestNewRecordRedactsTranscriptAndBuildsPayload(t *testing.T) {
	rec, err := NewRecord("cand-1", reportedSnapshot())
	if err != nil {
		t.Fatalf("NewRecord() error = %v", err)
	}
	if rec.ID == "" || rec.SessionID != "s-1" || rec.Topic != "hybrid work" {
		t.Fatalf("unexpected record header: %+v", rec)
	}
	if rec.Payload.CommunicationScore != 70 || rec.Payload.TeamworkScore != 60 || rec.Payload.ProblemSolvingScore != 90 {
		t.Fatalf("unexpected scores: %+v", rec.Payload)
	}
	if rec.Payload.DiscussionAnalysis.OverallScore != 75 {
		t.Fatalf("overall = %d, want 75", rec.Payload.DiscussionAnalysis.OverallScore)
	}
	if !rec.PIIRedacted || strings.Contains(rec.Transcript[2].Text, "dana@example.com") {
		t.Fatalf("transcript not redacted: %+v", rec.Transcript[2])
	}
	if rec.Transcript[1].Role != "agent" || rec.Transcript[1].Speaker != "Alex" {
		t.Fatalf("speaker metadata lost: %+v", rec.Transcript[1])
	}
}

func TestNewRecordValidation(t *testing.T) {
	if _, err := NewRecord(" ", reportedSnapshot()); !errors.Is(err, ErrMissingCandidate) {
		t.Fatalf("expected ErrMissingCandidate, got %v", err)
	}
	snap := reportedSnapshot()
	snap.Report = nil
	if _, err := NewRecord("c", snap); !errors.Is(err, ErrMissingReport) {
		t.Fatalf("expected ErrMissingReport, got %v", err)
	}
}

func TestInMemoryStoreListsNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for _, topic := range []string{"a", "b", "c"} {
		if r := Persist(ctx, s, Record{CandidateID: "c1", Topic: topic}); !r.OK {
			t.Fatalf("Persist() = %+v", r)
		}
	}
	_ = s.SaveReport(ctx, Record{CandidateID: "c2", Topic: "other"})

	got, err := s.ListByCandidate(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("ListByCandidate() error = %v", err)
	}
	if len(got) != 2 || got[0].Topic != "c" || got[1].Topic != "b" {
		t.Fatalf("unexpected list: %+v", got)
	}

	if r := Persist(ctx, s, Record{}); r.OK || r.Error == "" {
		t.Fatalf("expected failed result for missing candidate, got %+v", r)
	}
}

func TestBackendStorePostsPayload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/api/candidates/cand%201/discussion-report" && r.URL.Path != "/api/candidates/cand 1/discussion-report" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var p assessment.Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.DiscussionAnalysis.Topic != "hybrid work" || p.CommunicationScore != 70 {
			t.Errorf("unexpected payload: %+v", p)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	store := NewBackendStore(server.URL+"/api/", "tok", time.Second)
	store.backoffFunc = func(int) time.Duration { return 0 }

	rec, _ := NewRecord("cand 1", reportedSnapshot())
	if r := Persist(context.Background(), store, rec); !r.OK {
		t.Fatalf("Persist() = %+v", r)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	if _, err := store.ListByCandidate(context.Background(), "cand 1", 5); !errors.Is(err, ErrListUnsupported) {
		t.Fatalf("expected ErrListUnsupported, got %v", err)
	}
}

func TestBackendStoreSurfacesRejection(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"candidate not found"}`))
	}))
	defer server.Close()

	store := NewBackendStore(server.URL, "", time.Second)
	rec, _ := NewRecord("missing", reportedSnapshot())
	r := Persist(context.Background(), store, rec)
	if r.OK || !strings.Contains(r.Error, "candidate not found") {
		t.Fatalf("unexpected result: %+v", r)
	}
	if calls.Load() != 1 {
		t.Fatalf("404 should not be retried, calls=%d", calls.Load())
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "reports.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first, _ := NewRecord("cand-1", reportedSnapshot())
	first.CreatedAt = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	second, _ := NewRecord("cand-1", reportedSnapshot())
	second.Topic = "later topic"
	second.CreatedAt = first.CreatedAt.Add(time.Hour)

	for _, rec := range []Record{first, second} {
		if err := store.SaveReport(ctx, rec); err != nil {
			t.Fatalf("SaveReport() error = %v", err)
		}
	}

	got, err := store.ListByCandidate(ctx, "cand-1", 10)
	if err != nil {
		t.Fatalf("ListByCandidate() error = %v", err)
	}
	if len(got) != 2 || got[0].Topic != "later topic" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if got[1].Payload.DiscussionAnalysis.OverallScore != 75 || len(got[1].Transcript) != 3 || !got[1].PIIRedacted {
		t.Fatalf("record did not survive storage: %+v", got[1])
	}
}

func TestNewStorePrecedence(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		opts Options
		want string
	}{
		{Options{}, "memory"},
		{Options{SQLitePath: filepath.Join(t.TempDir(), "r.db")}, "sqlite"},
		{Options{BackendURL: "http://backend", SQLitePath: "ignored.db"}, "backend"},
	}
	for _, tc := range cases {
		s, err := NewStore(ctx, tc.opts)
		if err != nil {
			t.Fatalf("NewStore(%+v) error = %v", tc.opts, err)
		}
		if got := Kind(s); got != tc.want {
			t.Fatalf("Kind = %q, want %q", got, tc.want)
		}
		_ = s.Close()
	}
}
