package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/skillforge/interview-gateway/pkg/avatar"
	"github.com/skillforge/interview-gateway/pkg/gateway/config"
	"github.com/skillforge/interview-gateway/pkg/gateway/handlers"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/session"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/sessions"
	gatewayserver "github.com/skillforge/interview-gateway/pkg/gateway/server"
	"github.com/skillforge/interview-gateway/pkg/interview"
	"github.com/skillforge/interview-gateway/pkg/speech"
	"github.com/skillforge/interview-gateway/pkg/storage/memory"
	"github.com/skillforge/interview-gateway/pkg/storage/postgres"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(ctx context.Context, cfg config.Config) (interview.Store, string, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig:   config.LoadFromEnv,
		openStore:    openStore,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) },
		signalStop:   signal.Stop,
	}
}

func openStore(ctx context.Context, cfg config.Config) (interview.Store, string, error) {
	if cfg.DatabaseURL == "" {
		return memory.New(), "memory", nil
	}
	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("open postgres store: %w", err)
	}
	return store, "postgres", nil
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil || deps.openStore == nil {
		return errors.New("missing config or store dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, storeKind, err := deps.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var avatarClient *avatar.Client
	if cfg.AvatarEnabled() {
		avatarClient, err = avatar.NewClient(avatar.Config{
			APIKey:    cfg.AvatarAPIKey,
			BaseURL:   cfg.AvatarBaseURL,
			ReplicaID: cfg.AvatarReplicaID,
			Timeout:   cfg.AvatarTimeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("avatar client: %w", err)
		}
	} else {
		logger.Info("avatar service not configured; sessions run audio-only")
	}

	var summarizer interview.Summarizer
	if cfg.GeminiAPIKey != "" {
		summarizer, err = interview.NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.SummaryModel, cfg.SummaryTimeout)
		if err != nil {
			return fmt.Errorf("summarizer: %w", err)
		}
	} else {
		logger.Info("summarizer not configured; reports use defaults")
	}

	registry := interview.NewService(interview.ServiceConfig{
		Store:           store,
		Avatar:          avatarProvider(avatarClient),
		Summarizer:      summarizer,
		Logger:          logger,
		DurationMinutes: cfg.InterviewDurationMinutes,
		AvatarTimeout:   cfg.AvatarTimeout,
	})

	newSpeech, err := buildSpeechFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tracker := sessions.NewTracker()
	gw := gatewayserver.New(cfg, gatewayserver.Deps{
		Registry:  registry,
		NewSpeech: newSpeech,
		Avatar:    avatarSender(avatarClient),
		Replicas:  replicaLister(avatarClient),
		Tracker:   tracker,
		StoreKind: storeKind,
		Logger:    logger,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting interview gateway",
		"addr", cfg.Addr, "store", storeKind,
		"speech_enabled", cfg.SpeechEnabled(), "avatar_enabled", cfg.AvatarEnabled())

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	tracker.NotifyAll("draining", "Server is shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		tracker.CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("interview gateway stopped")
	return nil
}

// buildSpeechFactory returns nil when the speech endpoint is not configured;
// the stream handler then rejects connections with a clear error.
func buildSpeechFactory(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.SpeechFactory, error) {
	if !cfg.SpeechEnabled() {
		logger.Warn("speech endpoint not configured; live streaming disabled")
		return nil, nil
	}

	var tokens speech.TokenProvider
	if cfg.SpeechAccessToken != "" {
		tokens = speech.StaticTokenProvider(cfg.SpeechAccessToken)
	} else {
		provider, err := speech.NewGoogleTokenProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("speech credentials: %w", err)
		}
		tokens = provider
	}

	speechCfg := speech.Config{
		ProjectID: cfg.GoogleProjectID,
		Location:  cfg.VertexLocation,
		Model:     cfg.SpeechModel,
	}
	return func() (session.SpeechConn, error) {
		return speech.NewClient(speechCfg, tokens, logger)
	}, nil
}

// Typed-nil adapters: a nil *avatar.Client must become a nil interface so
// callers can test against nil.

func avatarProvider(c *avatar.Client) interview.AvatarProvider {
	if c == nil {
		return nil
	}
	return c
}

func avatarSender(c *avatar.Client) session.AvatarSender {
	if c == nil {
		return nil
	}
	return c
}

func replicaLister(c *avatar.Client) handlers.ReplicaLister {
	if c == nil {
		return nil
	}
	return c
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "interviewd: load .env: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "interviewd: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
