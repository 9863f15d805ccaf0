package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var errEmptyInput = errors.New("empty input")

var codeBlockRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")

// Source tags which extraction tier produced a value.
type Source string

const (
	SourceDirect   Source = "direct"
	SourceFenced   Source = "fenced"
	SourceScanned  Source = "scanned"
	SourceFallback Source = "fallback"
)

// ParseError is returned when no tier yields valid JSON for the target type.
type ParseError struct {
	Target string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not extract %s JSON from model output: %v", e.Target, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extract decodes T from model output: the whole text, then the first fenced
// code block, then the first balanced [...] or {...} span.
func Extract[T any](raw string) (T, Source, error) {
	var zero T
	trimmed := strings.TrimSpace(raw)

	v, err := decode[T](trimmed)
	if err == nil {
		return v, SourceDirect, nil
	}
	lastErr := err

	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		if v, err = decode[T](strings.TrimSpace(m[1])); err == nil {
			return v, SourceFenced, nil
		}
		lastErr = err
	}

	for _, span := range balancedSpans(raw) {
		if v, err = decode[T](span); err == nil {
			return v, SourceScanned, nil
		}
		lastErr = err
	}

	return zero, "", &ParseError{Target: fmt.Sprintf("%T", zero), Raw: raw, Err: lastErr}
}

func decode[T any](s string) (T, error) {
	var v T
	if s == "" {
		return v, errEmptyInput
	}
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// balancedSpans returns the first top-level balanced array span and the first
// top-level object span, in order of appearance. Brackets inside JSON strings
// are ignored.
func balancedSpans(s string) []string {
	var spans []string
	seen := map[byte]bool{}
	for i := 0; i < len(s) && len(seen) < 2; i++ {
		open := s[i]
		if (open != '[' && open != '{') || seen[open] {
			continue
		}
		if end := matchBracket(s, i); end > i {
			seen[open] = true
			spans = append(spans, s[i:end+1])
			i = end
		}
	}
	return spans
}

func matchBracket(s string, start int) int {
	var stack []byte
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[', '{':
			stack = append(stack, c)
		case ']', '}':
			if len(stack) == 0 {
				return -1
			}
			want := byte('[')
			if c == '}' {
				want = '{'
			}
			if stack[len(stack)-1] != want {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
