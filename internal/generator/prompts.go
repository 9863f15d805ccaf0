package generator

import (
	"fmt"
	"strings"

	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/gemini"
	"github.com/ent0n29/roundtable/internal/personas"
)

func talkingPointsPrompt(p personas.Persona, topic string) string {
	return fmt.Sprintf(
		"You are preparing %s for a group discussion on the topic: %q.\n"+
			"%s approaches problems from a %s perspective.\n"+
			"Write exactly %d distinct talking points %s could raise. Each point must be under 50 words.\n"+
			"Respond ONLY with a JSON array of %d strings. No numbering, no commentary.",
		p.DisplayName, topic, p.DisplayName, p.Stance, discussion.PointsPerAgent, p.DisplayName, discussion.PointsPerAgent,
	)
}

// fallbackPoints stands in when the model's answer cannot be parsed.
func fallbackPoints(p personas.Persona, topic string) []string {
	stance := p.Stance
	if i := strings.Index(stance, ":"); i > 0 {
		stance = stance[:i]
	}
	templates := []string{
		"What is the core problem behind %q from a %s point of view?",
		"Which assumptions about %q deserve a %s challenge?",
		"What would a %[2]s first step on %[1]q look like?",
		"Who is most affected by %q, seen from a %s angle?",
		"What are the main risks in %q, weighed in a %s way?",
		"What would success on %q look like to a %s thinker?",
		"Which trade-offs around %q matter most from a %s standpoint?",
		"What example or precedent helps a %[2]s reading of %[1]q?",
		"How could %q be tested quickly with a %s approach?",
		"What is one %[2]s recommendation to close the discussion on %[1]q?",
	}
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, fmt.Sprintf(t, topic, stance))
	}
	return out
}

// utteranceContents builds the conversation for one agent turn. The persona's
// own earlier turns are sent as model turns, everyone else as user turns.
func utteranceContents(req discussion.UtteranceRequest) []gemini.Content {
	contents := []gemini.Content{gemini.UserText(req.Persona.Prompt(req.Topic, req.Point))}
	for _, u := range req.History {
		if u.Speaker.Role == discussion.RoleAgent && u.Speaker.PersonaID == req.Persona.ID {
			contents = appendTurn(contents, gemini.ModelText(u.Text))
			continue
		}
		contents = appendTurn(contents, gemini.UserText(fmt.Sprintf("%s: %s", u.Speaker.Name, u.Text)))
	}
	contents = appendTurn(contents, gemini.UserText(fmt.Sprintf(
		"It's your turn, %s. Reply in character with your next contribution only, without a name prefix.",
		req.Persona.DisplayName,
	)))
	return contents
}

// appendTurn merges consecutive turns from the same role so the provider
// sees strictly alternating roles.
func appendTurn(contents []gemini.Content, next gemini.Content) []gemini.Content {
	if n := len(contents); n > 0 && contents[n-1].Role == next.Role {
		contents[n-1].Parts = append(contents[n-1].Parts, next.Parts...)
		return contents
	}
	return append(contents, next)
}

const reportInstructions = `You are an experienced communication coach. Evaluate ONLY the contributions of the human participant (role "human") in the group discussion transcript below. The other speakers are scripted AI agents and must not be scored.

Score the human from 0 to 10 on four dimensions: communication, empathy, collaboration and adaptivity. For each dimension give 1-3 strengths, 1-3 areas for improvement and one actionable tip.

Respond ONLY with JSON in exactly this shape:
{
  "communication": {"score": 0, "strengths": [], "areasForImprovement": [], "tip": ""},
  "empathy": {"score": 0, "strengths": [], "areasForImprovement": [], "tip": ""},
  "collaboration": {"score": 0, "strengths": [], "areasForImprovement": [], "tip": ""},
  "adaptivity": {"score": 0, "strengths": [], "areasForImprovement": [], "tip": ""}
}`

func reportPrompt(topic string, transcript []discussion.Utterance) string {
	var sb strings.Builder
	sb.WriteString(reportInstructions)
	fmt.Fprintf(&sb, "\n\nTopic: %s\n\nTranscript:\n", topic)
	for _, u := range transcript {
		fmt.Fprintf(&sb, "[%s] %s: %s\n", u.Speaker.Role, u.Speaker.Name, u.Text)
	}
	return sb.String()
}
