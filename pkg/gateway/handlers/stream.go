package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillforge/interview-gateway/pkg/gateway/config"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/protocol"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/session"
	"github.com/skillforge/interview-gateway/pkg/gateway/live/sessions"
	"github.com/skillforge/interview-gateway/pkg/interview"
)

// SpeechFactory builds a fresh speech connection for one stream. Each
// connection is single-use.
type SpeechFactory func() (session.SpeechConn, error)

// StreamHandler upgrades /v1/interview/{id}/stream to the live audio socket.
type StreamHandler struct {
	Config    config.Config
	Registry  *interview.Service
	NewSpeech SpeechFactory
	Avatar    session.AvatarSender
	Tracker   *sessions.Tracker
	Logger    *slog.Logger
}

func (h StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	upgrader := websocket.Upgrader{
		CheckOrigin: func(req *http.Request) bool { return h.originAllowed(req) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if sess.Status == interview.StatusEnded || sess.Status == interview.StatusError {
		h.writeClose(conn, protocol.Error("interview is already finished"))
		return
	}
	if h.NewSpeech == nil {
		h.writeClose(conn, protocol.Error("live streaming is not configured"))
		return
	}

	speechConn, err := h.NewSpeech()
	if err != nil {
		h.Logger.Error("speech client setup failed", "session_id", id, "error", err)
		h.writeClose(conn, protocol.Error("Failed to connect to interviewer"))
		return
	}

	live := session.New(conn, sess, session.Config{
		PingInterval: h.Config.StreamPingInterval,
		WriteTimeout: h.Config.StreamWriteTimeout,
		ReadTimeout:  h.Config.StreamReadTimeout,
		ReadLimit:    h.Config.StreamReadLimit,
		QueueSize:    h.Config.StreamQueueSize,
	}, session.Deps{
		Registry: h.Registry,
		Speech:   speechConn,
		Avatar:   h.Avatar,
		Logger:   h.Logger,
	})

	unregister := h.Tracker.Register(id, sessions.Handle{
		Cancel: live.Cancel,
		Notify: live.Notify,
	})
	defer unregister()

	if err := live.Run(r.Context()); err != nil {
		h.Logger.Info("stream session finished", "session_id", id, "error", err)
	}
}

func (h StreamHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" || len(h.Config.CORSAllowedOrigins) == 0 {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h StreamHandler) writeClose(conn *websocket.Conn, frame any) {
	deadline := time.Now().Add(h.Config.StreamWriteTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.WriteMessage(websocket.TextMessage, protocol.Marshal(frame))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}
