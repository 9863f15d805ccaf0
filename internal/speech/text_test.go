package speech

import "testing"

func TestSpeakable(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain text untouched", "We should pilot it first.", "We should pilot it first."},
		{"drops emphasis and emoji", "That is **really** smart 🚀 honestly", "That is really smart honestly"},
		{"keeps link label", "See [the study](https://example.com/x) on this.", "See the study on this."},
		{"drops speaker tag", "Maya: I love that framing.", "I love that framing."},
		{"collapses whitespace", "one\n\n two\tthree", "one two three"},
		{"empty", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Speakable(tc.in); got != tc.want {
				t.Fatalf("Speakable(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
