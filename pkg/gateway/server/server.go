// Package server wires handlers, middleware, and routes into one
// http.Handler.
package server

import (
	"log/slog"
	"net/http"

	"github.com/skillforge/interview-gateway/pkg/gateway/config"
	"github.com/skillforge/interview-gateway/pkg/gateway/handlers"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/session"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/sessions"
	"github.com/skillforge/interview-gateway/pkg/gateway/mw"
	"github.com/skillforge/interview-gateway/pkg/interview"
)

// Deps carries everything the route table needs.
type Deps struct {
	Registry  *interview.Service
	NewSpeech handlers.SpeechFactory
	Avatar    session.AvatarSender
	Replicas  handlers.ReplicaLister
	Tracker   *sessions.Tracker
	StoreKind string
	Logger    *slog.Logger
}

type Server struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
	mux    *http.ServeMux
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		StoreKind: s.deps.StoreKind,
	})

	ih := handlers.InterviewHandler{
		Config:   s.cfg,
		Registry: s.deps.Registry,
		Avatar:   s.deps.Replicas,
		Logger:   s.logger,
	}
	s.mux.HandleFunc("POST /v1/interview/start", ih.Start)
	s.mux.HandleFunc("GET /v1/interview/replicas", ih.Replicas)
	s.mux.HandleFunc("POST /v1/interview/{id}/upload-cv", ih.UploadCV)
	s.mux.HandleFunc("POST /v1/interview/{id}/end", ih.End)
	s.mux.HandleFunc("GET /v1/interview/{id}/status", ih.Status)
	s.mux.HandleFunc("GET /v1/interview/{id}/transcript", ih.Transcript)

	s.mux.Handle("GET /v1/interview/{id}/stream", handlers.StreamHandler{
		Config:    s.cfg,
		Registry:  s.deps.Registry,
		NewSpeech: s.deps.NewSpeech,
		Avatar:    s.deps.Avatar,
		Tracker:   s.deps.Tracker,
		Logger:    s.logger,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg.CORSAllowedOrigins, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
