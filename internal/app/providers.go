package app

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/gemini"
	"github.com/ent0n29/roundtable/internal/generator"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/speech"
)

type llmSetup struct {
	client generator.LLM
	detail string
}

func resolveLLM(cfg config.Config, metrics *observability.Metrics) (llmSetup, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "gemini":
		client := gemini.NewClient(gemini.ClientConfig{
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			Timeout:    cfg.LLMRequestTimeout,
			MaxRetries: cfg.LLMMaxRetries,
			Observer: func(purpose gemini.Purpose, outcome string, elapsed time.Duration) {
				metrics.ObserveProviderCall(string(purpose), outcome, elapsed)
			},
		})
		return llmSetup{client: client, detail: "gemini " + client.Model()}, nil
	case "mock":
		log.Printf("llm provider: mock (canned responses, no network)")
		return llmSetup{client: gemini.NewMockClient(), detail: "mock"}, nil
	default:
		return llmSetup{}, fmt.Errorf("invalid LLM_PROVIDER: %q (expected gemini|mock)", cfg.LLMProvider)
	}
}

type speechSetup struct {
	engine   *speech.Engine
	provider string
}

func resolveSpeech(cfg config.Config) (speechSetup, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.SpeechProvider))
	if provider == "" {
		provider = "none"
	}
	engine, err := speech.NewEngineForProvider(provider)
	if err != nil {
		return speechSetup{}, fmt.Errorf("invalid SPEECH_PROVIDER: %w", err)
	}
	return speechSetup{engine: engine, provider: provider}, nil
}
