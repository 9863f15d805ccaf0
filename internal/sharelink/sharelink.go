package sharelink

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long a shared link stays usable after creation.
const DefaultTTL = 7 * 24 * time.Hour

// PublicPathPrefix is the route that opens a shared discussion.
const PublicPathPrefix = "/public/discussion/"

// Config is the discussion setup carried inside a link token.
//
// The API key travels in plaintext inside the token. Anyone holding the link
// can read it.
type Config struct {
	Topic         string    `json:"topic"`
	APIKey        string    `json:"apiKey"`
	CandidateName string    `json:"candidateName"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	TimeLimit     int       `json:"timeLimit"` // minutes
	CreatedAt     time.Time `json:"createdAt"`
}

// TimeLimitDuration converts the minute count; zero means "use the default".
func (c Config) TimeLimitDuration() time.Duration {
	if c.TimeLimit <= 0 {
		return 0
	}
	return time.Duration(c.TimeLimit) * time.Minute
}

// InvalidLinkError means the token could not be decoded into a Config.
type InvalidLinkError struct {
	Reason string
	Err    error
}

func (e *InvalidLinkError) Error() string {
	if e.Err == nil {
		return "invalid discussion link: " + e.Reason
	}
	return fmt.Sprintf("invalid discussion link: %s: %v", e.Reason, e.Err)
}

func (e *InvalidLinkError) Unwrap() error { return e.Err }

// ExpiredLinkError means the token decoded but is past its expiry window.
type ExpiredLinkError struct {
	CreatedAt time.Time
	ExpiredAt time.Time
}

func (e *ExpiredLinkError) Error() string {
	return fmt.Sprintf("discussion link expired at %s", e.ExpiredAt.UTC().Format(time.RFC3339))
}

var errMissingField = errors.New("missing required field")

// Encode serializes cfg into a URL-safe path segment.
func Encode(cfg Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode link config: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. Padded and standard-alphabet base64 are accepted
// too, since tokens get hand-copied. Expiry is not checked here.
func Decode(token string) (Config, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Config{}, &InvalidLinkError{Reason: "empty token"}
	}
	raw, err := decodeBase64(token)
	if err != nil {
		return Config{}, &InvalidLinkError{Reason: "corrupt encoding", Err: err}
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, &InvalidLinkError{Reason: "malformed payload", Err: err}
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return Config{}, &InvalidLinkError{Reason: "topic", Err: errMissingField}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Config{}, &InvalidLinkError{Reason: "apiKey", Err: errMissingField}
	}
	if cfg.CreatedAt.IsZero() {
		return Config{}, &InvalidLinkError{Reason: "createdAt", Err: errMissingField}
	}
	if cfg.TimeLimit < 0 {
		return Config{}, &InvalidLinkError{Reason: "negative timeLimit"}
	}
	return cfg, nil
}

func decodeBase64(token string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		raw, err := enc.DecodeString(token)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// Validate enforces the expiry window measured from CreatedAt.
func Validate(cfg Config, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiresAt := cfg.CreatedAt.Add(ttl)
	if now.After(expiresAt) {
		return &ExpiredLinkError{CreatedAt: cfg.CreatedAt, ExpiredAt: expiresAt}
	}
	return nil
}

// Codec bundles decoding, expiry and URL building.
type Codec struct {
	TTL     time.Duration
	BaseURL string
	Now     func() time.Time
}

func (c Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// New stamps CreatedAt when unset and returns the token.
func (c Codec) New(cfg Config) (Config, string, error) {
	if strings.TrimSpace(cfg.Topic) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return Config{}, "", &InvalidLinkError{Reason: "topic and apiKey are required"}
	}
	if cfg.TimeLimit < 0 {
		return Config{}, "", &InvalidLinkError{Reason: "negative timeLimit"}
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = c.now().UTC()
	}
	token, err := Encode(cfg)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, token, nil
}

// Open decodes token and checks it has not expired.
func (c Codec) Open(token string) (Config, error) {
	cfg, err := Decode(token)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg, c.now(), c.TTL); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// URL returns the public address for token.
func (c Codec) URL(token string) string {
	return strings.TrimRight(c.BaseURL, "/") + PublicPathPrefix + token
}
