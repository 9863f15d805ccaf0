package speech

import (
	"context"
	"time"
)

// VoiceProfile selects how a line is synthesized.
type VoiceProfile struct {
	Name  string
	Pitch float64
	Rate  float64
}

// DefaultVoice is used when a persona's voice is not installed.
var DefaultVoice = VoiceProfile{Name: "default", Pitch: 1, Rate: 1}

// Synthesizer plays text aloud. Speak starts playback and returns; Cancel
// stops whatever is playing.
type Synthesizer interface {
	Voices() []string
	Speak(ctx context.Context, text string, voice VoiceProfile) error
	Cancel()
	Close() error
}

type TranscriptionType string

const (
	TranscriptionPartial TranscriptionType = "partial"
	TranscriptionFinal   TranscriptionType = "final"
)

type Transcription struct {
	Type TranscriptionType
	Text string
	At   time.Time
}

// Recognizer is a continuous speech-to-text stream with interim results.
// The channel returned by Start closes when the stream ends on its own or
// after Stop.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Transcription, error)
	Stop()
}
