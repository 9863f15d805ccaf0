package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactSecrets(t *testing.T) {
	key := "AIza" + strings.Repeat("x", 35)
	input := "my key is " + key + " and the url was https://host/v1?alt=json&key=abc123&x=1"
	out, changed := RedactSecrets(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, key) || strings.Contains(out, "abc123") {
		t.Fatalf("secret survived redaction: %q", out)
	}
	if !strings.Contains(out, "&key=[REDACTED_KEY]&x=1") {
		t.Fatalf("query param not masked in place: %q", out)
	}

	if _, changed := RedactSecrets("nothing to see here"); changed {
		t.Fatalf("plain text should not change")
	}
}

func TestRedactCombinesPIIAndSecrets(t *testing.T) {
	out, changed := Redact("write to dana@example.com with AIza" + strings.Repeat("y", 35))
	if !changed || !strings.Contains(out, "[REDACTED_EMAIL]") || !strings.Contains(out, "[REDACTED_KEY]") {
		t.Fatalf("unexpected redaction: %q", out)
	}
}

func TestMaskKey(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"short":            "*****",
		"AIzaSyABCDEF1234": "AIza********1234",
	}
	for in, want := range cases {
		if got := MaskKey(in); got != want {
			t.Fatalf("MaskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
