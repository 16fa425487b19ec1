package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an interview session. Transitions are
// monotonic: ready -> in_progress -> ended|error, never backward.
type Status string

const (
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusEnded      Status = "ended"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReady, StatusInProgress, StatusEnded, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusReady:
		return next == StatusInProgress || next == StatusEnded || next == StatusError
	case StatusInProgress:
		return next == StatusEnded || next == StatusError
	default:
		return false
	}
}

// Level is the interview difficulty.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// NormalizeLevel maps arbitrary input onto a valid Level, defaulting to
// intermediate the way the interview templates expect.
func NormalizeLevel(raw string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelBeginner:
		return LevelBeginner
	case LevelAdvanced:
		return LevelAdvanced
	default:
		return LevelIntermediate
	}
}

// Speaker identifies which party produced a transcript entry.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerAI   Speaker = "ai"
)

func (s Speaker) Valid() bool {
	return s == SpeakerUser || s == SpeakerAI
}

// MaxCandidateContextBytes bounds stored CV/context text.
const MaxCandidateContextBytes = 64 * 1024

// MaxAudioSampleBytes bounds the per-entry audio sample; a short sample is
// enough for audit, the full stream is never persisted.
const MaxAudioSampleBytes = 1000

// Session is one end-to-end interview instance. Sessions are never deleted;
// ended and errored sessions are retained for audit and reporting.
type Session struct {
	ID               uuid.UUID
	Topic            string
	Level            Level
	CandidateContext string
	SystemPrompt     string
	Status           Status

	AvatarPersonaID      string
	AvatarConversationID string
	ConversationURL      string

	StartedAt       time.Time
	EndedAt         time.Time
	DurationSeconds int
}

// AudioOnly reports whether the session runs without an avatar video feed.
func (s Session) AudioOnly() bool {
	return strings.TrimSpace(s.ConversationURL) == ""
}

// TranscriptEntry is one recorded turn. Sequence numbers are assigned by the
// recorder, start at 0, and are strictly increasing and gap-free per session.
type TranscriptEntry struct {
	SessionID   uuid.UUID
	Speaker     Speaker
	Text        string
	AudioSample []byte
	Sequence    int
	Timestamp   time.Time
}

// Report is the structured post-interview evaluation. Sub-scores are on a
// 1-10 scale; Overall is derived, never set independently.
type Report struct {
	Summary        string
	Strengths      []string
	Improvements   []string
	TopicScore     int
	CommScore      int
	ProblemScore   int
	Overall        int
	Recommendation string
	GeneratedAt    time.Time
}

// Finalize recomputes the derived overall score. It must be called before a
// report is persisted or returned.
func (r *Report) Finalize() {
	r.Overall = (r.TopicScore + r.CommScore + r.ProblemScore) / 3
}

// ValidationError marks a request that is malformed rather than failed.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func validationErr(message, param string) *ValidationError {
	return &ValidationError{Param: param, Message: message}
}
