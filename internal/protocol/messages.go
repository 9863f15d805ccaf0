package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeHumanMessage    MessageType = "human_message"
	TypeSessionSnapshot MessageType = "session_snapshot"
	TypeUtterance       MessageType = "utterance"
	TypeTurnChanged     MessageType = "turn_changed"
	TypeClockTick       MessageType = "clock_tick"
	TypeSessionEnded    MessageType = "session_ended"
	TypeReportReady     MessageType = "report_ready"
	TypeSTTPartial      MessageType = "stt_partial"
	TypeErrorEvent      MessageType = "error_event"
)

// Control actions accepted in client_control.
const (
	ActionAdvance          = "advance"
	ActionAcceptInterrupt  = "accept_interrupt"
	ActionDeclineInterrupt = "decline_interrupt"
	ActionReset            = "reset"
	ActionGenerateReport   = "generate_report"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

type HumanMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type SessionSnapshot struct {
	Type       MessageType            `json:"type"`
	SessionID  string                 `json:"session_id"`
	Reason     string                 `json:"reason"`
	State      discussion.State       `json:"state"`
	Transcript []discussion.Utterance `json:"transcript"`
	Report     *assessment.Report     `json:"report,omitempty"`
}

type UtteranceMessage struct {
	Type      MessageType          `json:"type"`
	SessionID string               `json:"session_id"`
	Utterance discussion.Utterance `json:"utterance"`
}

type TurnChanged struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	State     discussion.State `json:"state"`
}

type ClockTick struct {
	Type             MessageType `json:"type"`
	SessionID        string      `json:"session_id"`
	RemainingSeconds int         `json:"remaining_seconds"`
}

type SessionEnded struct {
	Type            MessageType      `json:"type"`
	SessionID       string           `json:"session_id"`
	NoContributions bool             `json:"no_contributions"`
	State           discussion.State `json:"state"`
}

type ReportReady struct {
	Type           MessageType       `json:"type"`
	SessionID      string            `json:"session_id"`
	Report         assessment.Report `json:"report"`
	OverallScore   float64           `json:"overall_score"`
	OverallPercent int               `json:"overall_percent"`
}

type STTPartial struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Final     bool        `json:"final"`
	TSMs      int64       `json:"ts_ms"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.TrimSpace(msg.Action)
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeHumanMessage:
		var msg HumanMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid human_message")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Snapshot wraps a controller snapshot for the wire.
func Snapshot(snap discussion.Snapshot, reason string) SessionSnapshot {
	return SessionSnapshot{
		Type:       TypeSessionSnapshot,
		SessionID:  snap.SessionID,
		Reason:     reason,
		State:      snap.State,
		Transcript: snap.Transcript,
		Report:     snap.Report,
	}
}

// FromNotice maps a controller notice to the outbound message(s) clients see.
func FromNotice(n discussion.Notice) []any {
	switch n.Type {
	case discussion.NoticeStarted, discussion.NoticeReset:
		return []any{SessionSnapshot{
			Type:       TypeSessionSnapshot,
			SessionID:  n.SessionID,
			Reason:     string(n.Type),
			State:      n.State,
			Transcript: []discussion.Utterance{},
		}}
	case discussion.NoticeUtterance:
		if n.Utterance == nil {
			return nil
		}
		return []any{UtteranceMessage{Type: TypeUtterance, SessionID: n.SessionID, Utterance: *n.Utterance}}
	case discussion.NoticeTurnChanged:
		return []any{TurnChanged{Type: TypeTurnChanged, SessionID: n.SessionID, State: n.State}}
	case discussion.NoticeTick:
		return []any{ClockTick{Type: TypeClockTick, SessionID: n.SessionID, RemainingSeconds: n.State.RemainingSeconds}}
	case discussion.NoticeEnded:
		return []any{SessionEnded{Type: TypeSessionEnded, SessionID: n.SessionID, State: n.State}}
	case discussion.NoticeNoContributions:
		return []any{SessionEnded{Type: TypeSessionEnded, SessionID: n.SessionID, NoContributions: true, State: n.State}}
	case discussion.NoticeReport:
		if n.Report == nil {
			return nil
		}
		return []any{ReportReady{
			Type:           TypeReportReady,
			SessionID:      n.SessionID,
			Report:         *n.Report,
			OverallScore:   n.Report.OverallDisplay(),
			OverallPercent: n.Report.OverallPercent(),
		}}
	case discussion.NoticeError:
		return []any{ErrorEvent{
			Type:      TypeErrorEvent,
			SessionID: n.SessionID,
			Code:      "provider_error",
			Source:    "llm",
			Retryable: true,
			Detail:    n.Error,
		}}
	default:
		return nil
	}
}
