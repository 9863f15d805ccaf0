package speech

import (
	"context"
	"errors"
	"sync"
	"time"
)

type noopSynthesizer struct{}

func (noopSynthesizer) Voices() []string { return nil }
func (noopSynthesizer) Speak(context.Context, string, VoiceProfile) error { return nil }
func (noopSynthesizer) Cancel() {}
func (noopSynthesizer) Close() error { return nil }

// noopRecognizer never produces results; its stream stays open until stopped.
type noopRecognizer struct{}

func (noopRecognizer) Start(ctx context.Context) (<-chan Transcription, error) {
	ch := make(chan Transcription)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (noopRecognizer) Stop() {}

// SpokenLine is one line recorded by MockSynthesizer.
type SpokenLine struct {
	Text  string
	Voice VoiceProfile
}

// MockSynthesizer records lines instead of playing audio.
type MockSynthesizer struct {
	mu        sync.Mutex
	voices    []string
	lines     []SpokenLine
	cancelled int
	playing   bool
	fail      error
}

func NewMockSynthesizer(voices ...string) *MockSynthesizer {
	if len(voices) == 0 {
		voices = []string{"en-US-Neural2-D", "en-US-Neural2-F"}
	}
	return &MockSynthesizer{voices: voices}
}

func (m *MockSynthesizer) Voices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.voices...)
}

func (m *MockSynthesizer) Speak(_ context.Context, text string, voice VoiceProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.lines = append(m.lines, SpokenLine{Text: text, Voice: voice})
	m.playing = true
	return nil
}

func (m *MockSynthesizer) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.cancelled++
	}
	m.playing = false
}

func (m *MockSynthesizer) Close() error { return nil }

// FailWith makes subsequent Speak calls return err.
func (m *MockSynthesizer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MockSynthesizer) Lines() []SpokenLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpokenLine(nil), m.lines...)
}

// Cancelled counts lines interrupted before a new one started.
func (m *MockSynthesizer) Cancelled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

var errRecognizerClosed = errors.New("speech: mock recognizer has no active stream")

// MockRecognizer lets tests push transcriptions and end the stream the way a
// real engine does after a silence timeout.
type MockRecognizer struct {
	mu     sync.Mutex
	stream chan Transcription
	starts int
}

func NewMockRecognizer() *MockRecognizer { return &MockRecognizer{} }

func (m *MockRecognizer) Start(ctx context.Context) (<-chan Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	ch := make(chan Transcription, 16)
	m.stream = ch
	m.starts++
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.stream == ch {
			m.closeLocked()
		}
		m.mu.Unlock()
	}()
	return ch, nil
}

func (m *MockRecognizer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *MockRecognizer) closeLocked() {
	if m.stream != nil {
		close(m.stream)
		m.stream = nil
	}
}

// Emit pushes one result into the active stream.
func (m *MockRecognizer) Emit(text string, final bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return errRecognizerClosed
	}
	typ := TranscriptionPartial
	if final {
		typ = TranscriptionFinal
	}
	m.stream <- Transcription{Type: typ, Text: text, At: time.Now().UTC()}
	return nil
}

// EndStream closes the active stream as if the engine stopped on its own.
func (m *MockRecognizer) EndStream() {
	m.Stop()
}

// Starts counts how many streams were opened.
func (m *MockRecognizer) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Active reports whether a stream is open.
func (m *MockRecognizer) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream != nil
}
