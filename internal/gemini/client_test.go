package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(baseURL string, observer Observer) *Client {
	c := NewClient(ClientConfig{BaseURL: baseURL, Model: "gemini-test", Timeout: 5 * time.Second, Observer: observer})
	c.backoffFunc = func(int) time.Duration { return 0 }
	return c
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Response{Candidates: []Candidate{{Content: ModelText(text)}}})
}

func TestGenerateSendsContentsAndReturnsFirstPart(t *testing.T) {
	var observed []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "k-1" {
			t.Errorf("expected key query param, got %q", got)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 2 || req.Contents[1].Role != RoleModel {
			t.Errorf("unexpected contents: %+v", req.Contents)
		}
		writeText(w, "hello there")
	}))
	defer server.Close()

	client := newTestClient(server.URL, func(p Purpose, outcome string, _ time.Duration) {
		observed = append(observed, string(p)+"/"+outcome)
	})
	text, err := client.Generate(context.Background(), "k-1", Request{
		Purpose:  PurposeUtterance,
		Contents: []Content{UserText("hi"), ModelText("earlier reply")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text = %q", text)
	}
	if len(observed) != 1 || observed[0] != "utterance/ok" {
		t.Fatalf("observer calls = %v", observed)
	}
}

func TestGenerateSurfacesProviderErrorMessage(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil).Generate(context.Background(), "bad", Request{Contents: []Content{UserText("x")}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "API key not valid" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("non-retryable status should not be retried, calls=%d", calls.Load())
	}
}

func TestGenerateRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeText(w, "recovered")
	}))
	defer server.Close()

	text, err := newTestClient(server.URL, nil).Generate(context.Background(), "k", Request{Contents: []Content{UserText("x")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "recovered" || calls.Load() != 2 {
		t.Fatalf("text=%q calls=%d", text, calls.Load())
	}
}

func TestGenerateGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, nil).Generate(context.Background(), "k", Request{Contents: []Content{UserText("x")}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if calls.Load() != defaultMaxRetries+1 {
		t.Fatalf("calls = %d, want %d", calls.Load(), defaultMaxRetries+1)
	}
}

func TestGenerateEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	var outcome string
	client := newTestClient(server.URL, func(_ Purpose, o string, _ time.Duration) { outcome = o })
	_, err := client.Generate(context.Background(), "k", Request{Contents: []Content{UserText("x")}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if outcome != "empty" {
		t.Fatalf("outcome = %q", outcome)
	}
}

func TestGenerateRequiresAPIKey(t *testing.T) {
	client := newTestClient("http://127.0.0.1:1", nil)
	_, err := client.Generate(context.Background(), " ", Request{Contents: []Content{UserText("x")}})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestTransportErrorDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := newTestClient(addr, nil).Generate(context.Background(), "super-secret-key", Request{Contents: []Content{UserText("x")}})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "super-secret-key") {
		t.Fatalf("error leaks api key: %v", err)
	}
}

func TestMockClientShapesOutputByPurpose(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	points, err := m.Generate(ctx, "k", Request{Purpose: PurposeTalkingPoints, Contents: []Content{UserText("topic")}})
	if err != nil || !strings.Contains(points, "```json") {
		t.Fatalf("talking points = %q, err=%v", points, err)
	}
	report, err := m.Generate(ctx, "k", Request{Purpose: PurposeReport, Contents: []Content{UserText("t")}})
	if err != nil || !json.Valid([]byte(report)) {
		t.Fatalf("report should be valid JSON, err=%v", err)
	}
	reply, err := m.Generate(ctx, "k", Request{Purpose: PurposeUtterance, Contents: []Content{UserText("what about cost?")}})
	if err != nil || !strings.Contains(reply, "what about cost?") {
		t.Fatalf("reply = %q, err=%v", reply, err)
	}
	if m.Calls() != 3 {
		t.Fatalf("calls = %d", m.Calls())
	}
	if _, err := m.Generate(ctx, "", Request{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}
