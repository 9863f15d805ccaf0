package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/personas"
	"github.com/ent0n29/roundtable/internal/reports"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/sharelink"
)

// VoiceLister reports the synthesizer voices available to personas.
type VoiceLister interface {
	Voices() []string
}

// Deps are the collaborators the API serves.
type Deps struct {
	Sessions *session.Manager
	Personas []personas.Persona
	Reports  reports.Store
	Links    sharelink.Codec
	Voices   VoiceLister
	Metrics  *observability.Metrics
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	personas []personas.Persona
	reports  reports.Store
	links    sharelink.Codec
	voices   VoiceLister
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:      cfg,
		sessions: deps.Sessions,
		personas: deps.Personas,
		reports:  deps.Reports,
		links:    deps.Links,
		voices:   deps.Voices,
		metrics:  deps.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/speech/voices", s.handleListVoices)
	r.Get("/v1/personas", s.handleListPersonas)

	r.Route("/v1/discussions", func(r chi.Router) {
		r.Post("/", s.handleCreateDiscussion)
		r.Get("/{id}", s.handleGetDiscussion)
		r.Post("/{id}/advance", s.handleAdvance)
		r.Post("/{id}/interrupt", s.handleInterrupt)
		r.Post("/{id}/messages", s.handleSubmitMessage)
		r.Post("/{id}/report", s.handleGenerateReport)
		r.Post("/{id}/persist", s.handlePersistReport)
		r.Post("/{id}/reset", s.handleReset)
		r.Delete("/{id}", s.handleRemoveDiscussion)
		r.Get("/{id}/ws", s.handleDiscussionWS)
	})

	r.Post("/v1/links", s.handleCreateLink)
	r.Get(sharelink.PublicPathPrefix+"{token}", s.handleOpenLink)
	r.Get("/v1/candidates/{id}/reports", s.handleListCandidateReports)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"llm_provider": s.cfg.LLMProvider,
		"report_store": s.reportStoreMode(),
	})
}

func (s *Server) reportStoreMode() string {
	if s.reports == nil {
		return "disabled"
	}
	return reports.Kind(s.reports)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	SessionID string `json:"session_id,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondDiscussionError maps controller errors onto HTTP statuses. Provider
// failures carry the session id so the caller can retry on the same session.
func respondDiscussionError(w http.ResponseWriter, sessionID string, err error) {
	status, code := discussionStatus(err)
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code, SessionID: sessionID})
}

func discussionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, discussion.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, discussion.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, discussion.ErrNoContributions):
		return http.StatusUnprocessableEntity, "no_contributions"
	case errors.Is(err, discussion.ErrNotRunning),
		errors.Is(err, discussion.ErrNotEnded),
		errors.Is(err, discussion.ErrAlreadyReported),
		errors.Is(err, discussion.ErrInvalidTransition),
		errors.Is(err, discussion.ErrSuperseded):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, discussion.ErrProvider), errors.Is(err, discussion.ErrReportFailed):
		return http.StatusBadGateway, "provider_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
