package discussion

import (
	"context"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/personas"
)

// UtteranceRequest carries everything needed to produce one agent turn.
type UtteranceRequest struct {
	Persona    personas.Persona
	Topic      string
	Point      string
	PointIndex int
	History    []Utterance
}

// Generator produces talking points, agent utterances and the final report.
type Generator interface {
	TalkingPoints(ctx context.Context, topic string) (TalkingPointSet, error)
	Utterance(ctx context.Context, req UtteranceRequest) (string, error)
	Report(ctx context.Context, topic string, transcript []Utterance) (assessment.Report, error)
}

// GeneratorFactory binds a Generator to the API key a session was started with.
type GeneratorFactory func(apiKey string) Generator

// Speech is the process-wide synthesis/recognition resource. Owners must
// Acquire before use; failures are never fatal to the turn flow.
type Speech interface {
	Acquire(owner string) error
	Release(owner string)
	Speak(owner string, p personas.Persona, text string) error
	SetListening(owner string, listening bool) error
}

type noSpeech struct{}

func (noSpeech) Acquire(string) error { return nil }
func (noSpeech) Release(string) {}
func (noSpeech) Speak(string, personas.Persona, string) error { return nil }
func (noSpeech) SetListening(string, bool) error { return nil }
