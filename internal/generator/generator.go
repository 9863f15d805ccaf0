package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/gemini"
	"github.com/ent0n29/roundtable/internal/personas"
)

// LLM is the provider contract the generator depends on.
type LLM interface {
	Generate(ctx context.Context, apiKey string, req gemini.Request) (string, error)
}

// ReportParseError means the model answered but no report could be read from it.
type ReportParseError struct {
	Err error
}

func (e *ReportParseError) Error() string { return "report parse error: " + e.Err.Error() }
func (e *ReportParseError) Unwrap() error { return e.Err }

// Generator implements discussion.Generator on top of an LLM, bound to the
// API key of one session.
type Generator struct {
	llm      LLM
	apiKey   string
	personas []personas.Persona
	now      func() time.Time
}

var _ discussion.Generator = (*Generator)(nil)

func New(llm LLM, apiKey string, list []personas.Persona) *Generator {
	return &Generator{llm: llm, apiKey: apiKey, personas: list, now: time.Now}
}

// Factory adapts New to discussion.GeneratorFactory.
func Factory(llm LLM, list []personas.Persona) discussion.GeneratorFactory {
	return func(apiKey string) discussion.Generator {
		return New(llm, apiKey, list)
	}
}

var (
	pointsTemperature    = 0.9
	utteranceTemperature = 0.8
	reportTemperature    = 0.2
)

// TalkingPoints asks for ten points per persona. A persona whose answer cannot
// be parsed gets synthetic points; only a provider failure fails the call.
func (g *Generator) TalkingPoints(ctx context.Context, topic string) (discussion.TalkingPointSet, error) {
	type result struct {
		id     personas.ID
		points []string
		err    error
	}
	results := make([]result, len(g.personas))

	var wg sync.WaitGroup
	for i, p := range g.personas {
		wg.Add(1)
		go func(i int, p personas.Persona) {
			defer wg.Done()
			points, err := g.pointsFor(ctx, p, topic)
			results[i] = result{id: p.ID, points: points, err: err}
		}(i, p)
	}
	wg.Wait()

	set := make(discussion.TalkingPointSet, len(results))
	for _, r := range results {
		if r.err != nil {
			return nil, fmt.Errorf("talking points for %s: %w", r.id, r.err)
		}
		set[r.id] = r.points
	}
	return set, nil
}

func (g *Generator) pointsFor(ctx context.Context, p personas.Persona, topic string) ([]string, error) {
	raw, err := g.llm.Generate(ctx, g.apiKey, gemini.Request{
		Purpose:          gemini.PurposeTalkingPoints,
		Contents:         []gemini.Content{gemini.UserText(talkingPointsPrompt(p, topic))},
		GenerationConfig: &gemini.GenerationConfig{Temperature: &pointsTemperature},
	})
	if err != nil {
		return nil, err
	}

	parsed, source, err := Extract[[]string](raw)
	points := cleanPoints(parsed)
	if err != nil || len(points) == 0 {
		log.Printf("generator: %s talking points unparseable, using fallback: %v", p.ID, err)
		points = fallbackPoints(p, topic)
		source = SourceFallback
	}
	points = discussion.PadPoints(points, discussion.PointsPerAgent)
	if len(points) > discussion.PointsPerAgent {
		points = points[:discussion.PointsPerAgent]
	}
	if source != SourceDirect {
		log.Printf("generator: %s talking points extracted via %s", p.ID, source)
	}
	return points, nil
}

func cleanPoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Utterance produces one in-character reply.
func (g *Generator) Utterance(ctx context.Context, req discussion.UtteranceRequest) (string, error) {
	text, err := g.llm.Generate(ctx, g.apiKey, gemini.Request{
		Purpose:          gemini.PurposeUtterance,
		Contents:         utteranceContents(req),
		GenerationConfig: &gemini.GenerationConfig{Temperature: &utteranceTemperature},
	})
	if err != nil {
		return "", err
	}
	return stripSpeakerPrefix(strings.TrimSpace(text), req.Persona.DisplayName), nil
}

// stripSpeakerPrefix removes a leading "Name:" the model sometimes echoes.
func stripSpeakerPrefix(text, name string) string {
	if name == "" {
		return text
	}
	prefix := name + ":"
	if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
		return strings.TrimSpace(text[len(prefix):])
	}
	return text
}

type dimensionDTO struct {
	Score               *float64 `json:"score"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areasForImprovement"`
	Tip                 string   `json:"tip"`
}

type reportDTO struct {
	Communication *dimensionDTO `json:"communication"`
	Empathy       *dimensionDTO `json:"empathy"`
	Collaboration *dimensionDTO `json:"collaboration"`
	Adaptivity    *dimensionDTO `json:"adaptivity"`
}

// Report scores the human's contributions. Unlike talking points there is no
// fallback: an unreadable answer is a ReportParseError.
func (g *Generator) Report(ctx context.Context, topic string, transcript []discussion.Utterance) (assessment.Report, error) {
	raw, err := g.llm.Generate(ctx, g.apiKey, gemini.Request{
		Purpose:  gemini.PurposeReport,
		Contents: []gemini.Content{gemini.UserText(reportPrompt(topic, transcript))},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:      &reportTemperature,
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return assessment.Report{}, err
	}

	dto, _, err := Extract[reportDTO](raw)
	if err != nil {
		return assessment.Report{}, &ReportParseError{Err: err}
	}
	report, err := dto.toReport()
	if err != nil {
		return assessment.Report{}, &ReportParseError{Err: err}
	}
	report.GeneratedAt = g.now().UTC()
	return report.Normalize(), nil
}

func (d reportDTO) toReport() (assessment.Report, error) {
	var missing []string
	conv := func(name string, in *dimensionDTO) assessment.Dimension {
		if in == nil || in.Score == nil {
			missing = append(missing, name)
			return assessment.Dimension{}
		}
		return assessment.Dimension{
			Score:               *in.Score,
			Strengths:           in.Strengths,
			AreasForImprovement: in.AreasForImprovement,
			Tip:                 in.Tip,
		}
	}
	r := assessment.Report{
		Communication: conv("communication", d.Communication),
		Empathy:       conv("empathy", d.Empathy),
		Collaboration: conv("collaboration", d.Collaboration),
		Adaptivity:    conv("adaptivity", d.Adaptivity),
	}
	if len(missing) > 0 {
		return assessment.Report{}, errors.New("missing dimensions: " + strings.Join(missing, ", "))
	}
	return r, nil
}
