package reports

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

	"github.com/ent0n29/roundtable/internal/reliability"
)

const backendMaxAttempts = 3

// BackendStore forwards reports to the candidate service. It can only write.
type BackendStore struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	backoffFunc func(attempt int) time.Duration
}

func NewBackendStore(baseURL, token string, timeout time.Duration) *BackendStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BackendStore{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
		backoffFunc: func(attempt int) time.Duration {
			return reliability.ExponentialBackoff(attempt, 200*time.Millisecond, 2*time.Second)
		},
	}
}

// SaveReport POSTs the payload to /candidates/{id}/discussion-report.
func (s *BackendStore) SaveReport(ctx context.Context, record Record) error {
	if strings.TrimSpace(record.CandidateID) == "" {
		return ErrMissingCandidate
	}
	body, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/candidates/%s/discussion-report", s.baseURL, url.PathEscape(record.CandidateID))

	var lastErr error
	for attempt := 0; attempt < backendMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoffFunc(attempt - 1)):
			}
		}
		retry, err := s.post(ctx, endpoint, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (s *BackendStore) post(ctx context.Context, endpoint string, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return reliability.IsRetryableHTTPStatus(resp.StatusCode),
		fmt.Errorf("backend rejected report: status %d: %s", resp.StatusCode, backendMessage(raw))
}

func backendMessage(raw []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func (s *BackendStore) ListByCandidate(context.Context, string, int) ([]Record, error) {
	return nil, ErrListUnsupported
}

func (s *BackendStore) Close() error { return nil }
