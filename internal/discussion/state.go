package discussion

import (
	"errors"
	"fmt"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/personas"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseEnded    Phase = "ended"
	PhaseReported Phase = "reported"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyMessage    = fmt.Errorf("%w: message is empty", ErrInvalidInput)
	ErrBusy            = errors.New("a generation is already in flight")
	ErrNotRunning      = errors.New("discussion is not running")
	ErrNotEnded        = errors.New("discussion has not ended")
	ErrAlreadyReported = errors.New("report already generated")
	ErrNoContributions = errors.New("no contributions were detected")
	ErrProvider        = errors.New("language model provider failed")
	ErrReportFailed    = errors.New("report generation failed")
	ErrSuperseded      = errors.New("result superseded by reset or timeout")
)

// State is the externally visible SessionState.
type State struct {
	Phase              Phase               `json:"phase"`
	Topic              string              `json:"topic"`
	Turn               TurnState           `json:"turn"`
	TurnIndex          int                 `json:"turn_index"`
	ActiveSpeaker      *Participant        `json:"active_speaker"`
	RemainingSeconds   int                 `json:"remaining_seconds"`
	HumanContributions int                 `json:"human_contribution_count"`
	PointCursors       map[personas.ID]int `json:"point_cursors"`
	PendingGeneration  bool                `json:"pending_generation"`
	Starting           bool                `json:"starting"`
	ReportPending      bool                `json:"report_pending"`
	NoContributions    bool                `json:"no_contributions"`
	LastError          string              `json:"last_error,omitempty"`
	Epoch              uint64              `json:"epoch"`
}

// Snapshot is a consistent copy of a session at one instant.
type Snapshot struct {
	SessionID  string             `json:"session_id"`
	State      State              `json:"state"`
	Transcript []Utterance        `json:"transcript"`
	Report     *assessment.Report `json:"report,omitempty"`
}

type NoticeType string

const (
	NoticeStarted         NoticeType = "started"
	NoticeUtterance       NoticeType = "utterance"
	NoticeTurnChanged     NoticeType = "turn_changed"
	NoticeTick            NoticeType = "tick"
	NoticeEnded           NoticeType = "ended"
	NoticeNoContributions NoticeType = "no_contributions"
	NoticeReport          NoticeType = "report"
	NoticeError           NoticeType = "error"
	NoticeReset           NoticeType = "reset"
)

// Notice is emitted after every state transition that observers care about.
type Notice struct {
	Type      NoticeType
	SessionID string
	State     State
	Utterance *Utterance
	Report    *assessment.Report
	Error     string
}
