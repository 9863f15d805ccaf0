package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/roundtable/internal/assessment"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/reports"
	"github.com/ent0n29/roundtable/internal/session"
)

type createDiscussionRequest struct {
	Topic            string `json:"topic"`
	APIKey           string `json:"api_key"`
	CandidateID      string `json:"candidate_id"`
	CandidateName    string `json:"candidate_name"`
	CreatedBy        string `json:"created_by"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

type discussionResponse struct {
	Session  *session.Entry      `json:"session"`
	Snapshot discussion.Snapshot `json:"snapshot"`
}

type reportResponse struct {
	SessionID      string            `json:"session_id"`
	Report         assessment.Report `json:"report"`
	OverallScore   float64           `json:"overall_score"`
	OverallPercent int               `json:"overall_percent"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"personas": s.personas})
}

func (s *Server) handleCreateDiscussion(w http.ResponseWriter, r *http.Request) {
	var req createDiscussionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Topic) == "" || strings.TrimSpace(req.APIKey) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "topic and api_key are required")
		return
	}
	if req.TimeLimitSeconds < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "time_limit_seconds must be >= 0")
		return
	}

	entry, err := s.startDiscussion(r.Context(), session.CreateRequest{
		CandidateID:   req.CandidateID,
		CandidateName: req.CandidateName,
		CreatedBy:     req.CreatedBy,
	}, discussion.StartRequest{
		Topic:         req.Topic,
		APIKey:        req.APIKey,
		CandidateName: req.CandidateName,
		TimeLimit:     time.Duration(req.TimeLimitSeconds) * time.Second,
	})
	if err != nil {
		sessionID := ""
		if entry != nil {
			sessionID = entry.ID
		}
		respondDiscussionError(w, sessionID, err)
		return
	}
	respondJSON(w, http.StatusCreated, discussionResponse{Session: entry, Snapshot: entry.Controller.Snapshot()})
}

// startDiscussion registers a session and starts it. A session that never got
// past talking points is dropped again; one whose first turn failed is kept
// so the caller can retry with advance.
func (s *Server) startDiscussion(ctx context.Context, create session.CreateRequest, start discussion.StartRequest) (*session.Entry, error) {
	entry, err := s.sessions.Create(create)
	if err != nil {
		return nil, err
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("created").Inc()

	if err := entry.Controller.Start(ctx, start); err != nil {
		s.metrics.SessionEvents.WithLabelValues("start_failed").Inc()
		if entry.Controller.Phase() == discussion.PhaseIdle {
			_, _ = s.sessions.Remove(entry.ID)
			s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
			return nil, err
		}
		return entry, err
	}
	s.metrics.SessionEvents.WithLabelValues("started").Inc()
	return entry, nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Entry, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	entry, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	_ = s.sessions.Touch(id)
	return entry, true
}

func (s *Server) respondSnapshot(w http.ResponseWriter, entry *session.Entry) {
	respondJSON(w, http.StatusOK, discussionResponse{Session: entry, Snapshot: entry.Controller.Snapshot()})
}

func (s *Server) handleGetDiscussion(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.respondSnapshot(w, entry)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := entry.Controller.Advance(r.Context()); err != nil {
		respondDiscussionError(w, entry.ID, err)
		return
	}
	s.respondSnapshot(w, entry)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Accept *bool `json:"accept"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Accept == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"accept\": true|false}")
		return
	}
	if err := entry.Controller.AnswerInterrupt(r.Context(), *req.Accept); err != nil {
		respondDiscussionError(w, entry.ID, err)
		return
	}
	s.respondSnapshot(w, entry)
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := entry.Controller.SubmitHuman(r.Context(), req.Text); err != nil {
		respondDiscussionError(w, entry.ID, err)
		return
	}
	s.respondSnapshot(w, entry)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	report, err := entry.Controller.GenerateReport(r.Context())
	if err != nil {
		_, code := discussionStatus(err)
		s.metrics.ObserveReport("generate", code)
		respondDiscussionError(w, entry.ID, err)
		return
	}
	s.metrics.ObserveReport("generate", "ok")
	respondJSON(w, http.StatusOK, reportResponse{
		SessionID:      entry.ID,
		Report:         report,
		OverallScore:   report.OverallDisplay(),
		OverallPercent: report.OverallPercent(),
	})
}

func (s *Server) handlePersistReport(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.reports == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "report store not configured")
		return
	}
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	candidateID := strings.TrimSpace(req.CandidateID)
	if candidateID == "" {
		candidateID = entry.CandidateID
	}

	rec, err := reports.NewRecord(candidateID, entry.Controller.Snapshot())
	switch {
	case errors.Is(err, reports.ErrMissingCandidate):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, reports.ErrMissingReport):
		respondError(w, http.StatusConflict, "invalid_state", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	result := reports.Persist(r.Context(), s.reports, rec)
	if !result.OK {
		s.metrics.ObserveReport("persist", "error")
		respondJSON(w, http.StatusBadGateway, result)
		return
	}
	s.metrics.ObserveReport("persist", "ok")
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "record_id": rec.ID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r)
	if !ok {
		return
	}
	entry.Controller.Reset()
	s.metrics.SessionEvents.WithLabelValues("reset").Inc()
	s.respondSnapshot(w, entry)
}

func (s *Server) handleRemoveDiscussion(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	entry, err := s.sessions.Remove(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("removed").Inc()
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListCandidateReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "report store not configured")
		return
	}
	candidateID := strings.TrimSpace(chi.URLParam(r, "id"))
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.reports.ListByCandidate(r.Context(), candidateID, limit)
	switch {
	case errors.Is(err, reports.ErrListUnsupported):
		respondError(w, http.StatusNotImplemented, "list_unsupported", err.Error())
		return
	case errors.Is(err, reports.ErrMissingCandidate):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if records == nil {
		records = []reports.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"candidate_id": candidateID, "reports": records})
}
