package handlers

import (
	"net/http"

	"github.com/skillforge/interview-gateway/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
	// StoreKind is "postgres" or "memory", set at startup.
	StoreKind string
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                bool     `json:"ok"`
		Store             string   `json:"store"`
		SpeechEnabled     bool     `json:"speech_enabled"`
		AvatarEnabled     bool     `json:"avatar_enabled"`
		SummarizerEnabled bool     `json:"summarizer_enabled"`
		Issues            []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 2)
	if !h.Config.SpeechEnabled() {
		issues = append(issues, "speech endpoint not configured; live streaming disabled")
	}

	// Missing optional integrations degrade features but do not fail
	// readiness; the REST surface stays functional.
	writeJSON(w, http.StatusOK, readyResp{
		OK:                true,
		Store:             h.StoreKind,
		SpeechEnabled:     h.Config.SpeechEnabled(),
		AvatarEnabled:     h.Config.AvatarEnabled(),
		SummarizerEnabled: h.Config.GeminiAPIKey != "",
		Issues:            issues,
	})
}
