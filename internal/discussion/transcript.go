package discussion

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ent0n29/roundtable/internal/personas"
)

type Role string

const (
	RoleAgent  Role = "agent"
	RoleHuman  Role = "human"
	RoleSystem Role = "system"
)

// Participant identifies who produced an utterance.
type Participant struct {
	Role      Role        `json:"role"`
	PersonaID personas.ID `json:"persona_id,omitempty"`
	Name      string      `json:"name"`
}

func AgentParticipant(p personas.Persona) Participant {
	return Participant{Role: RoleAgent, PersonaID: p.ID, Name: p.DisplayName}
}

func HumanParticipant(name string) Participant {
	if name == "" {
		name = "You"
	}
	return Participant{Role: RoleHuman, Name: name}
}

func SystemParticipant() Participant {
	return Participant{Role: RoleSystem, Name: "System"}
}

// Utterance is one immutable transcript entry.
type Utterance struct {
	ID        string      `json:"id"`
	Speaker   Participant `json:"speaker"`
	Text      string      `json:"text"`
	EmittedAt time.Time   `json:"emitted_at"`
}

// Transcript is an append-only utterance log. It is not safe for concurrent
// use; the owning Controller serializes access.
type Transcript struct {
	entries []Utterance
}

func (t *Transcript) Append(speaker Participant, text string, at time.Time) Utterance {
	u := Utterance{
		ID:        ulid.Make().String(),
		Speaker:   speaker,
		Text:      text,
		EmittedAt: at.UTC(),
	}
	t.entries = append(t.entries, u)
	return u
}

func (t *Transcript) Len() int { return len(t.entries) }

// Entries returns a copy of the log in conversation order.
func (t *Transcript) Entries() []Utterance {
	out := make([]Utterance, len(t.entries))
	copy(out, t.entries)
	return out
}

// Reset clears the log. Only a full session reset does this.
func (t *Transcript) Reset() {
	t.entries = nil
}
