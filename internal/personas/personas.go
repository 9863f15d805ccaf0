package personas

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ID identifies one of the fixed scripted agents.
type ID string

const (
	Analytical ID = "analytical"
	Creative   ID = "creative"
	Pragmatic  ID = "pragmatic"
)

// Order is the fixed speaking order of the scripted agents.
var Order = []ID{Analytical, Creative, Pragmatic}

// Voice holds speech synthesis hints for a persona.
type Voice struct {
	Name  string  `yaml:"name" json:"name"`
	Pitch float64 `yaml:"pitch" json:"pitch"`
	Rate  float64 `yaml:"rate" json:"rate"`
}

// Persona is a scripted discussion participant.
//
// StyleTemplate may reference {name}, {topic} and {point}.
type Persona struct {
	ID            ID     `yaml:"id" json:"id"`
	DisplayName   string `yaml:"display_name" json:"displayName"`
	Stance        string `yaml:"stance" json:"stance"`
	StyleTemplate string `yaml:"style_template" json:"-"`
	Voice         Voice  `yaml:"voice" json:"voice"`
}

var ErrInvalidCatalog = errors.New("invalid persona catalog")

// Defaults returns the built-in personas in speaking order.
func Defaults() []Persona {
	return []Persona{
		{
			ID:          Analytical,
			DisplayName: "Alex",
			Stance:      "analytical: evidence, data, trade-offs and logical structure",
			StyleTemplate: "You are {name}, an analytical thinker taking part in a group discussion about \"{topic}\". " +
				"You reason from evidence and data, question assumptions and lay out trade-offs clearly. " +
				"{point}Keep it under 100 words, speak naturally, and respond to what the others just said.",
			Voice: Voice{Name: "en-US-Neural2-D", Pitch: 0.9, Rate: 1.0},
		},
		{
			ID:          Creative,
			DisplayName: "Maya",
			Stance:      "creative: unconventional ideas, analogies and possibilities",
			StyleTemplate: "You are {name}, a creative thinker taking part in a group discussion about \"{topic}\". " +
				"You bring fresh angles, analogies and bold ideas, and you like to reframe the problem. " +
				"{point}Keep it under 100 words, speak naturally, and respond to what the others just said.",
			Voice: Voice{Name: "en-US-Neural2-F", Pitch: 1.15, Rate: 1.05},
		},
		{
			ID:          Pragmatic,
			DisplayName: "Sam",
			Stance:      "pragmatic: feasibility, cost, execution and concrete next steps",
			StyleTemplate: "You are {name}, a pragmatic thinker taking part in a group discussion about \"{topic}\". " +
				"You focus on what is feasible, what it costs and how it would actually be executed. " +
				"{point}Keep it under 100 words, speak naturally, and respond to what the others just said.",
			Voice: Voice{Name: "en-GB-Neural2-B", Pitch: 1.0, Rate: 0.95},
		},
	}
}

// Prompt renders the persona's style template for one turn.
func (p Persona) Prompt(topic, point string) string {
	pointClause := ""
	if point = strings.TrimSpace(point); point != "" {
		pointClause = fmt.Sprintf("Work this talking point into your reply: %s. ", strings.TrimRight(point, ". "))
	}
	r := strings.NewReplacer(
		"{name}", p.DisplayName,
		"{topic}", topic,
		"{point}", pointClause,
	)
	return r.Replace(p.StyleTemplate)
}

type catalogFile struct {
	Personas []Persona `yaml:"personas"`
}

// Load returns the default personas overlaid with the YAML catalog at path.
// An empty path yields the defaults. The file may override display names,
// stances, templates and voices, but not add or drop personas.
func Load(path string) ([]Persona, error) {
	out := Defaults()
	if strings.TrimSpace(path) == "" {
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	if len(file.Personas) != len(Order) {
		return nil, fmt.Errorf("%w: want %d personas, got %d", ErrInvalidCatalog, len(Order), len(file.Personas))
	}

	seen := make(map[ID]bool, len(file.Personas))
	for _, override := range file.Personas {
		idx := indexOf(out, override.ID)
		if idx < 0 {
			return nil, fmt.Errorf("%w: unknown persona id %q", ErrInvalidCatalog, override.ID)
		}
		if seen[override.ID] {
			return nil, fmt.Errorf("%w: duplicate persona id %q", ErrInvalidCatalog, override.ID)
		}
		seen[override.ID] = true
		out[idx] = merge(out[idx], override)
	}
	return out, nil
}

// Find looks a persona up by id.
func Find(list []Persona, id ID) (Persona, bool) {
	if i := indexOf(list, id); i >= 0 {
		return list[i], true
	}
	return Persona{}, false
}

func indexOf(list []Persona, id ID) int {
	for i, p := range list {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func merge(base, override Persona) Persona {
	if s := strings.TrimSpace(override.DisplayName); s != "" {
		base.DisplayName = s
	}
	if s := strings.TrimSpace(override.Stance); s != "" {
		base.Stance = s
	}
	if s := strings.TrimSpace(override.StyleTemplate); s != "" {
		base.StyleTemplate = s
	}
	if s := strings.TrimSpace(override.Voice.Name); s != "" {
		base.Voice.Name = s
	}
	if override.Voice.Pitch > 0 {
		base.Voice.Pitch = override.Voice.Pitch
	}
	if override.Voice.Rate > 0 {
		base.Voice.Rate = override.Voice.Rate
	}
	return base
}
