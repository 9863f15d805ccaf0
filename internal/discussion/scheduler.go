package discussion

import (
	"errors"
	"fmt"
)

// TurnState is the scheduler's sub-state within a running session.
type TurnState string

const (
	TurnNone              TurnState = ""
	TurnAgent             TurnState = "agent_turn"
	TurnInterruptPrompt   TurnState = "interrupt_prompt"
	TurnHuman             TurnState = "human_turn"
	TurnHumanInterjecting TurnState = "human_interjecting"
)

const (
	// Seats is the rotation length: three agents followed by the human.
	Seats     = 4
	humanSeat = Seats - 1
)

var ErrInvalidTransition = errors.New("invalid turn transition")

// Scheduler cycles speakers Agent0, Agent1, Agent2, Human. Only an agent turn
// leads to the interrupt prompt; a human turn goes straight to the next seat.
type Scheduler struct {
	index int
	state TurnState
}

func (s *Scheduler) Start() {
	s.index = 0
	s.state = TurnAgent
}

// Stop abandons any prompt or pending text entry.
func (s *Scheduler) Stop() {
	s.state = TurnNone
}

func (s *Scheduler) Index() int       { return s.index }
func (s *Scheduler) State() TurnState { return s.state }

// AgentSeat reports the agent index when an agent holds the floor.
func (s *Scheduler) AgentSeat() (int, bool) {
	if s.state != TurnAgent && s.state != TurnInterruptPrompt {
		return 0, false
	}
	return s.index, true
}

// AwaitingHuman is true when the human is expected to type.
func (s *Scheduler) AwaitingHuman() bool {
	return s.state == TurnHuman || s.state == TurnHumanInterjecting
}

// AgentSpoke moves a finished agent turn to the interrupt prompt.
func (s *Scheduler) AgentSpoke() error {
	if s.state != TurnAgent {
		return s.invalid("agent_spoke")
	}
	s.state = TurnInterruptPrompt
	return nil
}

// Decline skips the interjection and passes the floor on.
func (s *Scheduler) Decline() error {
	if s.state != TurnInterruptPrompt {
		return s.invalid("decline_interrupt")
	}
	s.advance()
	return nil
}

// Accept lets the human speak without moving the rotation yet.
func (s *Scheduler) Accept() error {
	if s.state != TurnInterruptPrompt {
		return s.invalid("accept_interrupt")
	}
	s.state = TurnHumanInterjecting
	return nil
}

// HumanSubmitted records a human utterance and passes the floor on.
func (s *Scheduler) HumanSubmitted() error {
	if !s.AwaitingHuman() {
		return s.invalid("human_submit")
	}
	s.advance()
	return nil
}

func (s *Scheduler) advance() {
	s.index = (s.index + 1) % Seats
	if s.index == humanSeat {
		s.state = TurnHuman
		return
	}
	s.state = TurnAgent
}

func (s *Scheduler) invalid(action string) error {
	state := s.state
	if state == TurnNone {
		state = "none"
	}
	return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, action, state)
}
