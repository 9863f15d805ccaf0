package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/policy"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/sharelink"
)

type linkResponse struct {
	Token         string    `json:"token"`
	URL           string    `json:"url"`
	Topic         string    `json:"topic"`
	CandidateName string    `json:"candidate_name,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	TimeLimit     int       `json:"time_limit_minutes"`
	APIKey        string    `json:"api_key_masked"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req sharelink.Config
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	// Links are always stamped by the server.
	req.CreatedAt = time.Time{}

	cfg, token, err := s.links.New(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.metrics.SessionEvents.WithLabelValues("link_created").Inc()
	respondJSON(w, http.StatusCreated, linkResponse{
		Token:         token,
		URL:           s.links.URL(token),
		Topic:         cfg.Topic,
		CandidateName: cfg.CandidateName,
		CreatedBy:     cfg.CreatedBy,
		TimeLimit:     cfg.TimeLimit,
		APIKey:        policy.MaskKey(cfg.APIKey),
		CreatedAt:     cfg.CreatedAt,
		ExpiresAt:     cfg.CreatedAt.Add(s.linkTTL()),
	})
}

func (s *Server) linkTTL() time.Duration {
	if s.links.TTL > 0 {
		return s.links.TTL
	}
	return sharelink.DefaultTTL
}

// handleOpenLink starts a discussion from a shared link.
func (s *Server) handleOpenLink(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.links.Open(chi.URLParam(r, "token"))
	if err != nil {
		var expired *sharelink.ExpiredLinkError
		if errors.As(err, &expired) {
			s.metrics.SessionEvents.WithLabelValues("link_expired").Inc()
			respondError(w, http.StatusGone, "expired_link", err.Error())
			return
		}
		s.metrics.SessionEvents.WithLabelValues("link_invalid").Inc()
		respondError(w, http.StatusBadRequest, "invalid_link", err.Error())
		return
	}

	entry, err := s.startDiscussion(r.Context(), session.CreateRequest{
		CandidateName: cfg.CandidateName,
		CreatedBy:     cfg.CreatedBy,
		Public:        true,
	}, discussion.StartRequest{
		Topic:         cfg.Topic,
		APIKey:        cfg.APIKey,
		CandidateName: cfg.CandidateName,
		TimeLimit:     cfg.TimeLimitDuration(),
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
