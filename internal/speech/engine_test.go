package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/roundtable/internal/personas"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newMockEngine() (*Engine, *MockSynthesizer, *MockRecognizer) {
	synth := NewMockSynthesizer("en-US-Neural2-D")
	rec := NewMockRecognizer()
	e := NewEngine(synth, rec)
	e.restartDelay = time.Millisecond
	return e, synth, rec
}

func TestSpeakRequiresOwnership(t *testing.T) {
	e, synth, _ := newMockEngine()
	alex := personas.Defaults()[0]

	if err := e.Speak("a", alex, "hello"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner before acquire, got %v", err)
	}
	if err := e.Acquire("a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := e.Speak("a", alex, "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if err := e.Acquire("b"); err != nil {
		t.Fatalf("acquire b: %v", err)
	}
	if err := e.Speak("a", alex, "stale"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("previous owner should lose the engine, got %v", err)
	}
	if len(synth.Lines()) != 1 {
		t.Fatalf("lines = %+v", synth.Lines())
	}

	e.Release("a")
	if e.Owner() != "b" {
		t.Fatalf("release by non-owner must be ignored, owner=%q", e.Owner())
	}
	e.Release("b")
	e.Release("b")
	if e.Owner() != "" {
		t.Fatalf("owner = %q after release", e.Owner())
	}
}

func TestSpeakCancelsPreviousLineAndFallsBackToDefaultVoice(t *testing.T) {
	e, synth, _ := newMockEngine()
	list := personas.Defaults()
	_ = e.Acquire("s")

	if err := e.Speak("s", list[0], "first"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if err := e.Speak("s", list[1], "second"); err != nil {
		t.Fatalf("speak: %v", err)
	}

	lines := synth.Lines()
	if len(lines) != 2 {
		t.Fatalf("lines = %+v", lines)
	}
	if lines[0].Voice.Name != list[0].Voice.Name {
		t.Fatalf("installed voice not used: %+v", lines[0].Voice)
	}
	if lines[1].Voice.Name != DefaultVoice.Name || lines[1].Voice.Pitch != list[1].Voice.Pitch {
		t.Fatalf("expected default voice with persona pitch, got %+v", lines[1].Voice)
	}
	if synth.Cancelled() != 1 {
		t.Fatalf("cancelled = %d, want 1", synth.Cancelled())
	}
}

func TestSynthesisErrorIsReturned(t *testing.T) {
	e, synth, _ := newMockEngine()
	_ = e.Acquire("s")
	synth.FailWith(errors.New("device busy"))
	if err := e.Speak("s", personas.Defaults()[0], "hi"); err == nil {
		t.Fatalf("expected synthesis error")
	}
}

func TestRecognitionRestartsAfterStreamEnds(t *testing.T) {
	e, _, rec := newMockEngine()

	var mu sync.Mutex
	var got []Transcription
	e.SetTranscriptionHook(func(owner string, tr Transcription) {
		if owner != "s" {
			t.Errorf("hook owner = %q", owner)
		}
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	})

	_ = e.Acquire("s")
	if err := e.SetListening("s", true); err != nil {
		t.Fatalf("listen: %v", err)
	}
	waitFor(t, "recognizer start", rec.Active)

	if err := rec.Emit("hello wor", false); err != nil {
		t.Fatalf("emit: %v", err)
	}
	waitFor(t, "partial delivered", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Type == TranscriptionPartial
	})

	rec.EndStream()
	waitFor(t, "automatic restart", func() bool { return rec.Starts() >= 2 && rec.Active() })

	if err := e.SetListening("s", false); err != nil {
		t.Fatalf("stop listening: %v", err)
	}
	if e.Listening() || rec.Active() {
		t.Fatalf("recognizer still active after stop")
	}
	starts := rec.Starts()
	time.Sleep(20 * time.Millisecond)
	if rec.Starts() != starts {
		t.Fatalf("recognizer restarted after being stopped")
	}
}

func TestAcquireStopsPreviousOwnersRecognition(t *testing.T) {
	e, _, rec := newMockEngine()
	_ = e.Acquire("old")
	_ = e.SetListening("old", true)
	waitFor(t, "recognizer start", rec.Active)

	_ = e.Acquire("new")
	if e.Listening() || rec.Active() {
		t.Fatalf("acquire must stop the previous recognizer")
	}
	if err := e.SetListening("old", true); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestNewEngineForProvider(t *testing.T) {
	for _, name := range []string{"", "none", "mock", "MOCK"} {
		e, err := NewEngineForProvider(name)
		if err != nil {
			t.Fatalf("provider %q: %v", name, err)
		}
		_ = e.Acquire("s")
		if err := e.SetListening("s", true); err != nil {
			t.Fatalf("provider %q listen: %v", name, err)
		}
		if err := e.Close(); err != nil {
			t.Fatalf("provider %q close: %v", name, err)
		}
	}
	if _, err := NewEngineForProvider("browser"); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}
