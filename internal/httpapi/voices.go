package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ent0n29/roundtable/internal/personas"
	"github.com/ent0n29/roundtable/internal/speech"
)

type personaVoice struct {
	PersonaID personas.ID `json:"persona_id"`
	Requested string      `json:"requested"`
	Installed bool        `json:"installed"`
	Effective string      `json:"effective"`
	Pitch     float64     `json:"pitch"`
	Rate      float64     `json:"rate"`
}

type listVoicesResponse struct {
	Provider       string         `json:"provider"`
	DefaultVoiceID string         `json:"default_voice_id"`
	Voices         []string       `json:"voices"`
	Personas       []personaVoice `json:"personas"`
}

// handleListVoices shows which persona voices the synthesizer can honour and
// which fall back to the default.
func (s *Server) handleListVoices(w http.ResponseWriter, _ *http.Request) {
	var installed []string
	if s.voices != nil {
		installed = append(installed, s.voices.Voices()...)
	}
	sort.Strings(installed)
	have := make(map[string]bool, len(installed))
	for _, v := range installed {
		have[strings.ToLower(v)] = true
	}

	out := make([]personaVoice, 0, len(s.personas))
	for _, p := range s.personas {
		pv := personaVoice{
			PersonaID: p.ID,
			Requested: p.Voice.Name,
			Installed: have[strings.ToLower(p.Voice.Name)],
			Effective: p.Voice.Name,
			Pitch:     p.Voice.Pitch,
			Rate:      p.Voice.Rate,
		}
		if !pv.Installed {
			pv.Effective = speech.DefaultVoice.Name
		}
		out = append(out, pv)
	}
	if installed == nil {
		installed = []string{}
	}
	respondJSON(w, http.StatusOK, listVoicesResponse{
		Provider:       s.cfg.SpeechProvider,
		DefaultVoiceID: speech.DefaultVoice.Name,
		Voices:         installed,
		Personas:       out,
	})
}
