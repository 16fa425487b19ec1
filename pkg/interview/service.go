package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AvatarConversation is the handle returned by avatar provisioning.
type AvatarConversation struct {
	PersonaID      string
	ConversationID string
	URL            string
}

// AvatarProvider provisions and tears down avatar video conversations. Every
// call is best-effort from the service's point of view: a failure degrades
// the session to audio-only and is never surfaced to the client.
type AvatarProvider interface {
	CreateConversation(ctx context.Context, name, systemPrompt string) (AvatarConversation, error)
	EndConversation(ctx context.Context, conversationID string) error
}

// ServiceConfig carries the dependencies of Service. Avatar and Summarizer
// may be nil; the service then runs audio-only with default reports.
type ServiceConfig struct {
	Store      Store
	Avatar     AvatarProvider
	Summarizer Summarizer
	Logger     *slog.Logger

	// DurationMinutes is the target interview length used by the prompt
	// templates. Defaults to 25.
	DurationMinutes int
	// AvatarTimeout bounds avatar provisioning during Start. Defaults to 15s.
	AvatarTimeout time.Duration
}

// Service is the session registry: it owns the interview lifecycle, the
// transcript recorder, and report generation. All methods are safe for
// concurrent use; per-session ordering is delegated to the store.
type Service struct {
	store           Store
	avatar          AvatarProvider
	summarizer      Summarizer
	logger          *slog.Logger
	durationMinutes int
	avatarTimeout   time.Duration
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DurationMinutes <= 0 {
		cfg.DurationMinutes = 25
	}
	if cfg.AvatarTimeout <= 0 {
		cfg.AvatarTimeout = 15 * time.Second
	}
	return &Service{
		store:           cfg.Store,
		avatar:          cfg.Avatar,
		summarizer:      cfg.Summarizer,
		logger:          cfg.Logger,
		durationMinutes: cfg.DurationMinutes,
		avatarTimeout:   cfg.AvatarTimeout,
	}
}

// StartParams are the client-supplied inputs for a new session.
type StartParams struct {
	Topic            string
	Level            string
	CandidateContext string
}

// Start creates a session in status ready. Avatar provisioning is attempted
// once with a bounded timeout; on failure the session proceeds audio-only.
func (s *Service) Start(ctx context.Context, p StartParams) (Session, error) {
	topic := strings.TrimSpace(p.Topic)
	if topic == "" {
		return Session{}, validationErr("topic is required", "topic")
	}
	level := NormalizeLevel(p.Level)
	candidateContext := truncateContext(p.CandidateContext)

	sess := Session{
		ID:               uuid.New(),
		Topic:            topic,
		Level:            level,
		CandidateContext: candidateContext,
		Status:           StatusReady,
		StartedAt:        time.Now().UTC(),
	}
	sess.SystemPrompt = BuildSystemPrompt(topic, level, candidateContext, s.durationMinutes)

	if s.avatar != nil {
		actx, cancel := context.WithTimeout(ctx, s.avatarTimeout)
		conv, err := s.avatar.CreateConversation(actx, avatarName(topic), sess.SystemPrompt)
		cancel()
		if err != nil {
			s.logger.Warn("avatar provisioning failed, continuing audio-only",
				"session_id", sess.ID, "error", err)
		} else {
			sess.AvatarPersonaID = conv.PersonaID
			sess.AvatarConversationID = conv.ConversationID
			sess.ConversationURL = conv.URL
		}
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("interview session created",
		"session_id", sess.ID, "topic", topic, "level", level,
		"audio_only", sess.AudioOnly())
	return sess, nil
}

// Status returns the current session state.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (Session, error) {
	return s.store.GetSession(ctx, id)
}

// UploadCV attaches candidate context to an existing session and regenerates
// the system prompt. The interviewer picks the new prompt up on the next
// speech connection, not mid-stream.
func (s *Service) UploadCV(ctx context.Context, id uuid.UUID, text string) (Session, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.CandidateContext = truncateContext(text)
	sess.SystemPrompt = BuildSystemPrompt(sess.Topic, sess.Level, sess.CandidateContext, s.durationMinutes)
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	s.logger.Info("candidate cv attached",
		"session_id", id, "context_bytes", len(sess.CandidateContext))
	return sess, nil
}

// MarkInProgress records that the client stream is live.
func (s *Service) MarkInProgress(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, StatusInProgress)
}

// MarkError flips a non-terminal session to error. Calling it on an already
// ended session is a no-op: the terminal state wins.
func (s *Service) MarkError(ctx context.Context, id uuid.UUID) error {
	err := s.transition(ctx, id, StatusError)
	if errors.Is(err, ErrInvalidTransition) {
		return nil
	}
	return err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next Status) error {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	sess.Status = next
	return s.store.UpdateSession(ctx, sess)
}

// Append records one transcript turn and returns its assigned sequence.
func (s *Service) Append(ctx context.Context, e TranscriptEntry) (int, error) {
	if !e.Speaker.Valid() {
		return 0, validationErr("unknown speaker", "speaker")
	}
	return s.store.AppendEntry(ctx, e)
}

// Entries returns the session transcript ordered by sequence.
func (s *Service) Entries(ctx context.Context, id uuid.UUID) ([]TranscriptEntry, error) {
	return s.store.Entries(ctx, id)
}

// TranscriptText renders the transcript as "speaker: text" lines joined by
// newlines, in sequence order, skipping entries with no text. There is no
// trailing newline.
func (s *Service) TranscriptText(ctx context.Context, id uuid.UUID) (string, error) {
	entries, err := s.store.Entries(ctx, id)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", e.Speaker, e.Text))
	}
	return strings.Join(lines, "\n"), nil
}

// EndResult is what End returns: final session state plus the evaluation.
type EndResult struct {
	Session Session
	Report  Report
}

// End finishes a session. The first call computes the duration, generates
// and stores the report, marks the session ended, and tears down the avatar
// conversation. Subsequent calls return the stored duration and report
// unchanged.
func (s *Service) End(ctx context.Context, id uuid.UUID) (EndResult, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return EndResult{}, err
	}

	if sess.Status == StatusEnded || sess.Status == StatusError {
		report, ok, err := s.store.GetReport(ctx, id)
		if err != nil {
			return EndResult{}, err
		}
		if !ok {
			// Errored sessions may never have produced a report.
			report, err = s.store.CreateReport(ctx, id, DefaultReport())
			if err != nil {
				return EndResult{}, err
			}
		}
		return EndResult{Session: sess, Report: report}, nil
	}

	now := time.Now().UTC()
	sess.EndedAt = now
	sess.DurationSeconds = int(now.Sub(sess.StartedAt).Seconds())
	sess.Status = StatusEnded

	report := s.generateReport(ctx, sess)
	stored, err := s.store.CreateReport(ctx, id, report)
	if err != nil {
		return EndResult{}, fmt.Errorf("store report: %w", err)
	}
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		return EndResult{}, err
	}

	if s.avatar != nil && sess.AvatarConversationID != "" {
		actx, cancel := context.WithTimeout(ctx, s.avatarTimeout)
		if err := s.avatar.EndConversation(actx, sess.AvatarConversationID); err != nil {
			s.logger.Warn("avatar teardown failed",
				"session_id", id, "conversation_id", sess.AvatarConversationID,
				"error", err)
		}
		cancel()
	}

	s.logger.Info("interview session ended",
		"session_id", id, "duration_seconds", sess.DurationSeconds,
		"overall_score", stored.Overall)
	return EndResult{Session: sess, Report: stored}, nil
}

// generateReport never fails: any summarizer or parse problem falls back to
// the default report.
func (s *Service) generateReport(ctx context.Context, sess Session) Report {
	transcript, err := s.TranscriptText(ctx, sess.ID)
	if err != nil {
		s.logger.Warn("transcript read failed, using default report",
			"session_id", sess.ID, "error", err)
		return DefaultReport()
	}
	if strings.TrimSpace(transcript) == "" || s.summarizer == nil {
		return DefaultReport()
	}
	prompt := BuildSummaryPrompt(sess.Topic, sess.Level, transcript)
	text, err := s.summarizer.Summarize(ctx, prompt)
	if err != nil {
		s.logger.Warn("summarization failed, using default report",
			"session_id", sess.ID, "error", err)
		return DefaultReport()
	}
	return ParseReport(text)
}

func truncateContext(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > MaxCandidateContextBytes {
		text = text[:MaxCandidateContextBytes]
	}
	return text
}

func avatarName(topic string) string {
	return "Interviewer - " + topic
}
