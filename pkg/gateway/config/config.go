// Package config loads the gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// CORS allowlist; empty disables CORS handling.
	CORSAllowedOrigins map[string]struct{}

	// JSON request bodies; CV uploads get their own larger budget.
	MaxBodyBytes int64
	MaxCVBytes   int64

	// Postgres connection string. Empty selects the in-memory store.
	DatabaseURL string

	// Speech gateway (Vertex AI live endpoint).
	GoogleProjectID string
	VertexLocation  string
	SpeechModel     string
	// SpeechAccessToken overrides ADC when set, mainly for local testing.
	SpeechAccessToken string

	// Report summarizer (Gemini API). Empty key disables summarization and
	// every interview gets the default report.
	GeminiAPIKey   string
	SummaryModel   string
	SummaryTimeout time.Duration

	// Avatar service. Empty key disables the avatar and sessions run
	// audio-only.
	AvatarAPIKey    string
	AvatarBaseURL   string
	AvatarReplicaID string
	AvatarTimeout   time.Duration

	// Interview shape.
	InterviewDurationMinutes int

	// Stream socket tuning.
	StreamPingInterval time.Duration
	StreamWriteTimeout time.Duration
	StreamReadTimeout  time.Duration
	StreamReadLimit    int64
	StreamQueueSize    int

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                     envOr("INTERVIEW_ADDR", ":8080"),
		CORSAllowedOrigins:       make(map[string]struct{}),
		MaxBodyBytes:             envInt64Or("INTERVIEW_MAX_BODY_BYTES", 1<<20),
		MaxCVBytes:               envInt64Or("INTERVIEW_MAX_CV_BYTES", 5<<20),
		DatabaseURL:              strings.TrimSpace(os.Getenv("INTERVIEW_DATABASE_URL")),
		GoogleProjectID:          envOr("GOOGLE_CLOUD_PROJECT", ""),
		VertexLocation:           envOr("VERTEX_AI_LOCATION", "us-central1"),
		SpeechModel:              envOr("INTERVIEW_SPEECH_MODEL", "gemini-2.0-flash-exp"),
		SpeechAccessToken:        strings.TrimSpace(os.Getenv("INTERVIEW_SPEECH_ACCESS_TOKEN")),
		GeminiAPIKey:             strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		SummaryModel:             envOr("INTERVIEW_SUMMARY_MODEL", "gemini-2.0-flash"),
		SummaryTimeout:           envDurationOr("INTERVIEW_SUMMARY_TIMEOUT", 30*time.Second),
		AvatarAPIKey:             strings.TrimSpace(os.Getenv("TAVUS_API_KEY")),
		AvatarBaseURL:            envOr("TAVUS_BASE_URL", "https://tavusapi.com/v2"),
		AvatarReplicaID:          strings.TrimSpace(os.Getenv("TAVUS_REPLICA_ID")),
		AvatarTimeout:            envDurationOr("INTERVIEW_AVATAR_TIMEOUT", 15*time.Second),
		InterviewDurationMinutes: envIntOr("INTERVIEW_DURATION_MINUTES", 25),
		StreamPingInterval:       envDurationOr("INTERVIEW_STREAM_PING_INTERVAL", 20*time.Second),
		StreamWriteTimeout:       envDurationOr("INTERVIEW_STREAM_WRITE_TIMEOUT", 5*time.Second),
		StreamReadTimeout:        envDurationOr("INTERVIEW_STREAM_READ_TIMEOUT", 90*time.Second),
		StreamReadLimit:          envInt64Or("INTERVIEW_STREAM_READ_LIMIT", 1<<20),
		StreamQueueSize:          envIntOr("INTERVIEW_STREAM_QUEUE_SIZE", 256),
		ReadHeaderTimeout:        envDurationOr("INTERVIEW_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:      envDurationOr("INTERVIEW_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("INTERVIEW_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_BODY_BYTES must be > 0")
	}
	if cfg.MaxCVBytes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_MAX_CV_BYTES must be > 0")
	}
	if cfg.SummaryTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SUMMARY_TIMEOUT must be > 0")
	}
	if cfg.AvatarTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_AVATAR_TIMEOUT must be > 0")
	}
	if cfg.InterviewDurationMinutes <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_DURATION_MINUTES must be > 0")
	}
	if cfg.StreamPingInterval <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_STREAM_PING_INTERVAL must be > 0")
	}
	if cfg.StreamWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_STREAM_WRITE_TIMEOUT must be > 0")
	}
	if cfg.StreamReadTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_STREAM_READ_TIMEOUT must be > 0")
	}
	if cfg.StreamReadLimit <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_STREAM_READ_LIMIT must be > 0")
	}
	if cfg.StreamQueueSize <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_STREAM_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("INTERVIEW_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.AvatarAPIKey != "" && cfg.AvatarReplicaID == "" {
		return Config{}, fmt.Errorf("TAVUS_REPLICA_ID must be set when TAVUS_API_KEY is set")
	}

	return cfg, nil
}

// AvatarEnabled reports whether avatar provisioning is configured.
func (c Config) AvatarEnabled() bool {
	return c.AvatarAPIKey != ""
}

// SpeechEnabled reports whether the live speech endpoint is reachable.
func (c Config) SpeechEnabled() bool {
	return c.GoogleProjectID != "" || c.SpeechAccessToken != ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
