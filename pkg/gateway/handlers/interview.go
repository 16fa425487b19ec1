package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/skillforge/interview-gateway/pkg/avatar"
	"github.com/skillforge/interview-gateway/pkg/gateway/config"
	"github.com/skillforge/interview-gateway/pkg/interview"
)

// ReplicaLister is the avatar catalog surface, nil when the avatar service
// is not configured.
type ReplicaLister interface {
	ListReplicas(ctx context.Context) ([]avatar.Replica, error)
}

// InterviewHandler serves the session lifecycle REST surface.
type InterviewHandler struct {
	Config   config.Config
	Registry *interview.Service
	Avatar   ReplicaLister
	Logger   *slog.Logger
}

type startRequest struct {
	Topic            string `json:"topic"`
	Level            string `json:"level"`
	CandidateContext string `json:"candidate_context"`
}

type startResponse struct {
	SessionID       string  `json:"session_id"`
	Status          string  `json:"status"`
	ConversationURL *string `json:"conversation_url"`
	AudioOnly       bool    `json:"audio_only"`
}

// Start creates a session. Accepts JSON or multipart form data with an
// optional cv_file part.
func (h InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	var params interview.StartParams

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxCVBytes)
		if err := r.ParseMultipartForm(h.Config.MaxCVBytes); err != nil {
			writeBadRequest(w, r, "invalid multipart form", "")
			return
		}
		params.Topic = r.FormValue("topic")
		params.Level = r.FormValue("level")
		if text, err := readCVPart(r, h.Config.MaxCVBytes); err != nil {
			writeBadRequest(w, r, err.Error(), "cv_file")
			return
		} else {
			params.CandidateContext = text
		}
	} else {
		var req startRequest
		if err := decodeJSONBody(w, r, h.Config.MaxBodyBytes, &req); err != nil {
			writeBadRequest(w, r, "invalid json body", "")
			return
		}
		params = interview.StartParams{
			Topic:            req.Topic,
			Level:            req.Level,
			CandidateContext: req.CandidateContext,
		}
	}

	sess, err := h.Registry.Start(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startResponse{
		SessionID:       sess.ID.String(),
		Status:          string(sess.Status),
		ConversationURL: nullableString(sess.ConversationURL),
		AudioOnly:       sess.AudioOnly(),
	})
}

type uploadCVRequest struct {
	Text string `json:"text"`
}

// UploadCV attaches candidate context to an existing session.
func (h InterviewHandler) UploadCV(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, "invalid session id", "id")
		return
	}

	var text string
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxCVBytes)
		if err := r.ParseMultipartForm(h.Config.MaxCVBytes); err != nil {
			writeBadRequest(w, r, "invalid multipart form", "")
			return
		}
		text, err = readCVPart(r, h.Config.MaxCVBytes)
		if err != nil {
			writeBadRequest(w, r, err.Error(), "cv_file")
			return
		}
	} else {
		var req uploadCVRequest
		if err := decodeJSONBody(w, r, h.Config.MaxCVBytes, &req); err != nil {
			writeBadRequest(w, r, "invalid json body", "")
			return
		}
		text = req.Text
	}
	if strings.TrimSpace(text) == "" {
		writeBadRequest(w, r, "cv text is required", "cv_file")
		return
	}

	sess, err := h.Registry.UploadCV(r.Context(), id, text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID.String(),
		"status":     "cv_processed",
		"cv_length":  len(sess.CandidateContext),
	})
}

type reportResponse struct {
	Summary             string   `json:"summary"`
	Strengths           []string `json:"strengths"`
	Improvements        []string `json:"improvements"`
	TopicScore          int      `json:"topic_score"`
	CommunicationScore  int      `json:"communication_score"`
	ProblemSolvingScore int      `json:"problem_solving_score"`
	OverallScore        int      `json:"overall_score"`
	Recommendation      string   `json:"recommendation,omitempty"`
	GeneratedAt         string   `json:"generated_at"`
}

// End finishes a session and returns the evaluation. Repeat calls return the
// same stored result.
func (h InterviewHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, "invalid session id", "id")
		return
	}
	result, err := h.Registry.End(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":       result.Session.ID.String(),
		"status":           string(result.Session.Status),
		"duration_seconds": result.Session.DurationSeconds,
		"report":           toReportResponse(result.Report),
	})
}

// Status returns the current session state.
func (h InterviewHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, "invalid session id", "id")
		return
	}
	sess, err := h.Registry.Status(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := map[string]any{
		"session_id":       sess.ID.String(),
		"status":           string(sess.Status),
		"topic":            sess.Topic,
		"level":            string(sess.Level),
		"audio_only":       sess.AudioOnly(),
		"conversation_url": nullableString(sess.ConversationURL),
		"started_at":       sess.StartedAt.Format(time.RFC3339),
		"duration_seconds": sess.DurationSeconds,
	}
	if !sess.EndedAt.IsZero() {
		resp["ended_at"] = sess.EndedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transcript returns the recorded turns in sequence order.
func (h InterviewHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDFromPath(r)
	if err != nil {
		writeBadRequest(w, r, "invalid session id", "id")
		return
	}
	entries, err := h.Registry.Entries(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	type entryResp struct {
		Sequence  int    `json:"sequence"`
		Speaker   string `json:"speaker"`
		Text      string `json:"text"`
		Timestamp string `json:"timestamp"`
	}
	out := make([]entryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResp{
			Sequence:  e.Sequence,
			Speaker:   string(e.Speaker),
			Text:      e.Text,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id.String(),
		"entries":    out,
	})
}

// Replicas lists the selectable avatar appearances. With no avatar service
// configured the catalog is empty rather than an error.
func (h InterviewHandler) Replicas(w http.ResponseWriter, r *http.Request) {
	if h.Avatar == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"avatar_enabled": false,
			"replicas":       []avatar.Replica{},
		})
		return
	}
	replicas, err := h.Avatar.ListReplicas(r.Context())
	if err != nil {
		h.Logger.Warn("replica listing failed", "error", err)
		writeError(w, r, err)
		return
	}
	if replicas == nil {
		replicas = []avatar.Replica{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"avatar_enabled": true,
		"replicas":       replicas,
	})
}

func toReportResponse(rep interview.Report) reportResponse {
	return reportResponse{
		Summary:             rep.Summary,
		Strengths:           rep.Strengths,
		Improvements:        rep.Improvements,
		TopicScore:          rep.TopicScore,
		CommunicationScore:  rep.CommScore,
		ProblemSolvingScore: rep.ProblemScore,
		OverallScore:        rep.Overall,
		Recommendation:      rep.Recommendation,
		GeneratedAt:         rep.GeneratedAt.Format(time.RFC3339),
	}
}

// readCVPart reads the cv_file form part as plain text. Returns empty with
// no error when the part is absent.
func readCVPart(r *http.Request, maxBytes int64) (string, error) {
	file, _, err := r.FormFile("cv_file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", errors.New("unreadable cv_file part")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return "", errors.New("unreadable cv_file part")
	}
	return string(data), nil
}

func nullableString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
