package session

import (
	"strings"
	"time"

	"github.com/ent0n29/roundtable/internal/discussion"
)

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	CreatedBy     string `json:"created_by"`
	Public        bool   `json:"-"`
}

// SpeechEvent is a recognition result relayed to a session's clients.
type SpeechEvent struct {
	Text  string
	Final bool
	At    time.Time
}

// Event is what subscribers of a session receive. Exactly one of Notice or
// Speech is set.
type Event struct {
	SessionID string
	Notice    *discussion.Notice
	Speech    *SpeechEvent
}

// Subscribe returns a buffered feed of the session's events and a function
// that detaches it. Slow subscribers drop events rather than stall the
// discussion.
func (m *Manager) Subscribe(sessionID string) (<-chan Event, func()) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 256)
	m.mu.Lock()
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.nextSubID++
	id := m.nextSubID
	if _, ok := m.subscribers[sessionID]; !ok {
		m.subscribers[sessionID] = make(map[int]chan Event)
	}
	m.subscribers[sessionID][id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[sessionID]
		if subs == nil {
			return
		}
		if c, ok := subs[id]; ok {
			delete(subs, id)
			close(c)
		}
		if len(subs) == 0 {
			delete(m.subscribers, sessionID)
		}
	}
}

// Publish fans evt out to the session's subscribers without blocking.
func (m *Manager) Publish(evt Event) {
	m.mu.Lock()
	hook := m.onEvent
	for _, ch := range m.subscribers[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
	m.mu.Unlock()

	if hook != nil {
		hook(evt)
	}
}

// PublishSpeech relays a recognition result for sessionID.
func (m *Manager) PublishSpeech(sessionID string, ev SpeechEvent) {
	m.Publish(Event{SessionID: sessionID, Speech: &ev})
}

func (m *Manager) closeSubscribersLocked(sessionID string) {
	for id, ch := range m.subscribers[sessionID] {
		close(ch)
		delete(m.subscribers[sessionID], id)
	}
	delete(m.subscribers, sessionID)
}
