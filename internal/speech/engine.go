package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/roundtable/internal/personas"
)

var ErrNotOwner = errors.New("speech: engine is held by another session")

const defaultRestartDelay = 250 * time.Millisecond

// Engine is the process-wide speech resource. Exactly one owner (a session
// id) may use it at a time; acquiring it for a new owner stops whatever the
// previous owner left running.
type Engine struct {
	synth        Synthesizer
	rec          Recognizer
	restartDelay time.Duration

	mu         sync.Mutex
	owner      string
	hook       func(owner string, t Transcription)
	stopListen context.CancelFunc
	listenDone chan struct{}
}

func NewEngine(synth Synthesizer, rec Recognizer) *Engine {
	return &Engine{synth: synth, rec: rec, restartDelay: defaultRestartDelay}
}

// NewEngineForProvider builds an engine from a provider name.
func NewEngineForProvider(provider string) (*Engine, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "none":
		return NewEngine(noopSynthesizer{}, noopRecognizer{}), nil
	case "mock":
		return NewEngine(NewMockSynthesizer(), NewMockRecognizer()), nil
	default:
		return nil, fmt.Errorf("speech: unsupported provider %q", provider)
	}
}

// SetTranscriptionHook registers the receiver of recognition results.
func (e *Engine) SetTranscriptionHook(fn func(owner string, t Transcription)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hook = fn
}

func (e *Engine) Owner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

// Acquire hands the engine to owner, releasing any previous holder first.
func (e *Engine) Acquire(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return errors.New("speech: owner is required")
	}
	e.mu.Lock()
	prev := e.owner
	done := e.stopListeningLocked()
	e.owner = owner
	e.mu.Unlock()

	waitDone(done)
	e.synth.Cancel()
	if prev != "" && prev != owner {
		log.Printf("speech: released from session %s for session %s", prev, owner)
	}
	return nil
}

// Release frees the engine if owner holds it. Releasing twice is harmless.
func (e *Engine) Release(owner string) {
	e.mu.Lock()
	if e.owner != owner {
		e.mu.Unlock()
		return
	}
	done := e.stopListeningLocked()
	e.owner = ""
	e.mu.Unlock()

	waitDone(done)
	e.synth.Cancel()
}

// Speak cancels the current line and starts a new one in the persona's voice.
func (e *Engine) Speak(owner string, p personas.Persona, text string) error {
	text = Speakable(text)
	if text == "" {
		return nil
	}
	e.mu.Lock()
	held := e.owner == owner
	e.mu.Unlock()
	if !held {
		return ErrNotOwner
	}

	e.synth.Cancel()
	return e.synth.Speak(context.Background(), text, e.voiceFor(p))
}

// Voices lists what the synthesizer has installed.
func (e *Engine) Voices() []string {
	return e.synth.Voices()
}

func (e *Engine) voiceFor(p personas.Persona) VoiceProfile {
	want := VoiceProfile{Name: p.Voice.Name, Pitch: p.Voice.Pitch, Rate: p.Voice.Rate}
	if want.Pitch <= 0 {
		want.Pitch = DefaultVoice.Pitch
	}
	if want.Rate <= 0 {
		want.Rate = DefaultVoice.Rate
	}
	for _, name := range e.synth.Voices() {
		if strings.EqualFold(name, want.Name) {
			return want
		}
	}
	// Keep pitch and rate so the personas still sound different.
	want.Name = DefaultVoice.Name
	return want
}

// SetListening starts or stops continuous recognition for owner.
func (e *Engine) SetListening(owner string, listening bool) error {
	e.mu.Lock()
	if e.owner != owner {
		e.mu.Unlock()
		return ErrNotOwner
	}
	if !listening {
		done := e.stopListeningLocked()
		e.mu.Unlock()
		waitDone(done)
		return nil
	}
	if e.stopListen != nil {
		e.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.stopListen = cancel
	e.listenDone = done
	e.mu.Unlock()

	go e.listen(ctx, owner, done)
	return nil
}

// Listening reports whether a recognition loop is active.
func (e *Engine) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopListen != nil
}

// listen keeps the recognizer running until ctx is cancelled, restarting it
// whenever the stream ends on its own.
func (e *Engine) listen(ctx context.Context, owner string, done chan struct{}) {
	defer close(done)
	defer e.rec.Stop()

	for {
		stream, err := e.rec.Start(ctx)
		if err != nil {
			log.Printf("speech: recognizer start failed for session %s: %v", owner, err)
		} else {
			for t := range stream {
				e.deliver(owner, t)
			}
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.restartDelay):
		}
	}
}

func (e *Engine) deliver(owner string, t Transcription) {
	e.mu.Lock()
	hook := e.hook
	current := e.owner
	e.mu.Unlock()
	if hook == nil || current != owner {
		return
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	hook(owner, t)
}

func (e *Engine) stopListeningLocked() chan struct{} {
	if e.stopListen == nil {
		return nil
	}
	e.stopListen()
	done := e.listenDone
	e.stopListen = nil
	e.listenDone = nil
	e.rec.Stop()
	return done
}

func waitDone(done chan struct{}) {
	if done != nil {
		<-done
	}
}

// Close stops all activity and releases provider resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	done := e.stopListeningLocked()
	e.owner = ""
	e.mu.Unlock()
	waitDone(done)
	e.synth.Cancel()
	return e.synth.Close()
}
