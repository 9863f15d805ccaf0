package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/protocol"
	"github.com/ent0n29/roundtable/internal/session"
)

var errSessionMismatch = errors.New("session_id does not match this connection")

// handleDiscussionWS streams a session's events and accepts control messages.
// The writer goroutine is the only one touching the connection for writes.
func (s *Server) handleDiscussionWS(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.sessions.Subscribe(entry.ID)
	inbound := make(chan any, 64)
	outbound := make(chan any, 256)
	outbound <- protocol.Snapshot(entry.Controller.Snapshot(), "connected")

	enqueue := func(msg any) {
		t, _ := messageTypeOf(msg)
		select {
		case outbound <- msg:
		default:
			s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
		}
	}

	forwardDone := make(chan struct{})
	go func() {
		defer close(forwardDone)
		for ev := range events {
			for _, msg := range eventMessages(ev) {
				enqueue(msg)
			}
		}
		// Feed closed: the session was removed or expired.
		cancel()
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		for msg := range inbound {
			_ = s.sessions.Touch(entry.ID)
			if err := applyClientMessage(ctx, entry, msg); err != nil {
				enqueue(actionError(entry.ID, err))
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					s.metrics.SessionEvents.WithLabelValues("ws_write_error").Inc()
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	go func() {
		<-ctx.Done()
		// Unblock ReadMessage when the session goes away underneath us.
		_ = conn.SetReadDeadline(time.Now())
	}()

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: entry.ID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	unsubscribe()
	<-forwardDone
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func applyClientMessage(ctx context.Context, entry *session.Entry, msg any) error {
	ctrl := entry.Controller
	switch m := msg.(type) {
	case protocol.ClientControl:
		if m.SessionID != entry.ID {
			return errSessionMismatch
		}
		switch m.Action {
		case protocol.ActionAdvance:
			return ctrl.Advance(ctx)
		case protocol.ActionAcceptInterrupt:
			return ctrl.AnswerInterrupt(ctx, true)
		case protocol.ActionDeclineInterrupt:
			return ctrl.AnswerInterrupt(ctx, false)
		case protocol.ActionReset:
			ctrl.Reset()
			return nil
		case protocol.ActionGenerateReport:
			_, err := ctrl.GenerateReport(ctx)
			return err
		default:
			return fmt.Errorf("%w: unknown action %q", discussion.ErrInvalidInput, m.Action)
		}
	case protocol.HumanMessage:
		if m.SessionID != entry.ID {
			return errSessionMismatch
		}
		return ctrl.SubmitHuman(ctx, m.Text)
	default:
		return protocol.ErrUnsupportedType
	}
}

func actionError(sessionID string, err error) protocol.ErrorEvent {
	_, code := discussionStatus(err)
	if errors.Is(err, errSessionMismatch) || errors.Is(err, protocol.ErrUnsupportedType) {
		code = "invalid_client_message"
	}
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "discussion",
		Retryable: code == "provider_error" || code == "busy",
		Detail:    err.Error(),
	}
}

func eventMessages(ev session.Event) []any {
	switch {
	case ev.Notice != nil:
		return protocol.FromNotice(*ev.Notice)
	case ev.Speech != nil:
		return []any{protocol.STTPartial{
			Type:      protocol.TypeSTTPartial,
			SessionID: ev.SessionID,
			Text:      ev.Speech.Text,
			Final:     ev.Speech.Final,
			TSMs:      ev.Speech.At.UnixMilli(),
		}}
	default:
		return nil
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.HumanMessage:
		return m.Type, true
	case protocol.SessionSnapshot:
		return m.Type, true
	case protocol.UtteranceMessage:
		return m.Type, true
	case protocol.TurnChanged:
		return m.Type, true
	case protocol.ClockTick:
		return m.Type, true
	case protocol.SessionEnded:
		return m.Type, true
	case protocol.ReportReady:
		return m.Type, true
	case protocol.STTPartial:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
