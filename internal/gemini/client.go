package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/roundtable/internal/reliability"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-1.5-flash"

	defaultMaxRetries  = 2
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 4 * time.Second
	maxErrorBody       = 64 << 10
)

var (
	ErrMissingAPIKey = errors.New("gemini: api key is required")
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini: status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether a later attempt may succeed.
func (e *APIError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

// Observer is notified once per Generate call.
type Observer func(purpose Purpose, outcome string, elapsed time.Duration)

type ClientConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Observer   Observer
}

// Client calls the generateContent endpoint. The API key travels per call,
// since every discussion brings its own.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	maxRetries  int
	observer    Observer
	backoffFunc func(attempt int) time.Duration
	now         func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultMaxRetries
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      strings.TrimPrefix(model, "models/"),
		maxRetries: retries,
		observer:   cfg.Observer,
		backoffFunc: func(attempt int) time.Duration {
			return reliability.ExponentialBackoff(attempt, defaultBackoffBase, defaultBackoffCap)
		},
		now: time.Now,
	}
}

func (c *Client) Model() string { return c.model }

// Generate sends one request and returns the first candidate's text.
func (c *Client) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	started := time.Now()
	text, err := c.generate(ctx, apiKey, req)
	if c.observer != nil {
		c.observer(req.Purpose, outcomeLabel(err), time.Since(started))
	}
	return text, err
}

func (c *Client) generate(ctx context.Context, apiKey string, req Request) (string, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if len(req.Contents) == 0 {
		return "", errors.New("gemini: request has no contents")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(c.model), url.QueryEscape(apiKey))

	var last *retryableStatus
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffFunc(attempt - 1)
			// A zero backoff also skips the server-requested wait.
			if delay > 0 && last.retryAfter > delay {
				delay = last.retryAfter
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.do(ctx, endpoint, body)
		if err == nil {
			return text, nil
		}
		if !errors.As(err, &last) {
			return "", err
		}
	}
	return "", last.err
}

// retryableStatus carries a retryable APIError through the retry loop.
type retryableStatus struct {
	err        *APIError
	retryAfter time.Duration
}

func (r *retryableStatus) Error() string { return r.err.Error() }
func (r *retryableStatus) Unwrap() error { return r.err }

func (c *Client) do(ctx context.Context, endpoint string, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", stripURL(err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		if apiErr.Retryable() {
			return "", &retryableStatus{
				err:        apiErr,
				retryAfter: reliability.RetryAfter(resp.Header.Get("Retry-After"), c.now()),
			}
		}
		return "", apiErr
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	text := out.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func errorMessage(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && strings.TrimSpace(env.Error.Message) != "" {
		return strings.TrimSpace(env.Error.Message)
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

// stripURL drops the request URL from transport errors so the key never
// reaches logs or clients.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

func outcomeLabel(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return "http_error"
	default:
		return "error"
	}
}
