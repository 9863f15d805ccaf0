package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/roundtable/internal/discussion"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Entry is the registry record wrapped around one discussion controller.
type Entry struct {
	ID             string    `json:"session_id"`
	CandidateID    string    `json:"candidate_id,omitempty"`
	CandidateName  string    `json:"candidate_name,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	Public         bool      `json:"public"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	Controller *discussion.Controller `json:"-"`
}

// ControllerFactory builds the controller for a new session. notify must be
// passed through to the controller so its notices reach subscribers.
type ControllerFactory func(id string, notify func(discussion.Notice)) (*discussion.Controller, error)

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Entry
	subscribers       map[string]map[int]chan Event
	nextSubID         int
	inactivityTimeout time.Duration
	newController     ControllerFactory
	onExpire          func(*Entry)
	onEvent           func(Event)
}

func NewManager(inactivityTimeout time.Duration, factory ControllerFactory) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Entry),
		subscribers:       make(map[string]map[int]chan Event),
		inactivityTimeout: inactivityTimeout,
		newController:     factory,
	}
}

func (m *Manager) SetExpireHook(hook func(*Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// SetEventHook observes every published event, e.g. for metrics.
func (m *Manager) SetEventHook(hook func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = hook
}

func (m *Manager) Create(req CreateRequest) (*Entry, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	ctrl, err := m.newController(id, func(n discussion.Notice) {
		m.Publish(Event{SessionID: id, Notice: &n})
	})
	if err != nil {
		return nil, err
	}
	e := &Entry{
		ID:             id,
		CandidateID:    strings.TrimSpace(req.CandidateID),
		CandidateName:  strings.TrimSpace(req.CandidateName),
		CreatedBy:      strings.TrimSpace(req.CreatedBy),
		Public:         req.Public,
		Status:         StatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
		Controller:     ctrl,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = e
	return clone(e), nil
}

func (m *Manager) Get(sessionID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.LastActivityAt = time.Now().UTC()
	return nil
}

// List returns all sessions, oldest first.
func (m *Manager) List() []*Entry {
	m.mu.RLock()
	out := make([]*Entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, clone(e))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Remove resets the discussion, drops the session and closes its subscribers.
func (m *Manager) Remove(sessionID string) (*Entry, error) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	e.Status = StatusEnded
	delete(m.sessions, sessionID)
	m.closeSubscribersLocked(sessionID)
	out := clone(e)
	m.mu.Unlock()

	e.Controller.Reset()
	return out, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartClock ticks every running discussion once per interval.
func (m *Manager) StartClock(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tickRunning(ctx)
			}
		}
	}()
}

func (m *Manager) tickRunning(ctx context.Context) {
	now := time.Now().UTC()
	var running []*discussion.Controller

	m.mu.Lock()
	for _, e := range m.sessions {
		if e.Controller.Phase() != discussion.PhaseRunning {
			continue
		}
		e.LastActivityAt = now
		running = append(running, e.Controller)
	}
	m.mu.Unlock()

	for _, c := range running {
		c.Tick(ctx)
	}
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Entry

	m.mu.Lock()
	for id, e := range m.sessions {
		if now.Sub(e.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		e.Status = StatusEnded
		e.LastActivityAt = now
		expired = append(expired, e)
		delete(m.sessions, id)
		m.closeSubscribersLocked(id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, e := range expired {
		e.Controller.Reset()
		if hook != nil {
			hook(clone(e))
		}
	}
}

func clone(e *Entry) *Entry {
	c := *e
	return &c
}
