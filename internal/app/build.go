package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/generator"
	"github.com/ent0n29/roundtable/internal/httpapi"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/personas"
	"github.com/ent0n29/roundtable/internal/reports"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/sharelink"
	"github.com/ent0n29/roundtable/internal/speech"
)

type ProviderInfo struct {
	LLM         string
	Speech      string
	ReportStore string
}

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Speech   *speech.Engine
	Reports  reports.Store
	Personas []personas.Persona
	Metrics  *observability.Metrics
	Info     ProviderInfo

	// Cleanup releases the speech engine and closes the report store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	list, err := personas.Load(cfg.PersonasFile)
	if err != nil {
		return nil, fmt.Errorf("persona catalog init failed: %w", err)
	}

	llm, err := resolveLLM(cfg, metrics)
	if err != nil {
		return nil, err
	}

	speechSetup, err := resolveSpeech(cfg)
	if err != nil {
		return nil, err
	}

	store, err := reports.NewStore(ctx, reports.Options{
		BackendURL:     cfg.BackendURL,
		BackendToken:   cfg.BackendToken,
		BackendTimeout: cfg.LLMRequestTimeout,
		DatabaseURL:    cfg.DatabaseURL,
		SQLitePath:     cfg.ReportsSQLitePath,
	})
	if err != nil {
		_ = speechSetup.engine.Close()
		return nil, fmt.Errorf("report store init failed: %w", err)
	}

	generators := generator.Factory(llm.client, list)
	sessions := session.NewManager(cfg.SessionInactivityTimeout, func(id string, notify func(discussion.Notice)) (*discussion.Controller, error) {
		return discussion.NewController(discussion.Options{
			ID:               id,
			Personas:         list,
			Generators:       generators,
			Speech:           speechSetup.engine,
			Notify:           notify,
			DefaultTimeLimit: cfg.DiscussionTimeLimit,
			ReportTimeout:    cfg.LLMRequestTimeout * 2,
		})
	})
	sessions.SetExpireHook(func(_ *session.Entry) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})
	sessions.SetEventHook(func(ev session.Event) {
		if ev.Notice == nil || ev.Notice.Type == discussion.NoticeTick {
			return
		}
		metrics.SessionEvents.WithLabelValues(string(ev.Notice.Type)).Inc()
	})

	speechSetup.engine.SetTranscriptionHook(func(owner string, t speech.Transcription) {
		sessions.PublishSpeech(owner, session.SpeechEvent{
			Text:  t.Text,
			Final: t.Type == speech.TranscriptionFinal,
			At:    t.At,
		})
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions: sessions,
		Personas: list,
		Reports:  store,
		Links:    sharelink.Codec{TTL: cfg.ShareLinkTTL, BaseURL: cfg.PublicBaseURL},
		Voices:   speechSetup.engine,
		Metrics:  metrics,
	})

	cleanup := func() error {
		var errs []string
		for _, e := range sessions.List() {
			_, _ = sessions.Remove(e.ID)
		}
		if err := speechSetup.engine.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := store.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Speech:   speechSetup.engine,
		Reports:  store,
		Personas: list,
		Metrics:  metrics,
		Info: ProviderInfo{
			LLM:         llm.detail,
			Speech:      speechSetup.provider,
			ReportStore: reports.Kind(store),
		},
		Cleanup: cleanup,
	}, nil
}
