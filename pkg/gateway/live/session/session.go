// Package session orchestrates one live interview stream: the client
// websocket on one side, the speech connection and optional avatar relay on
// the other.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillforge/interview-gateway/pkg/gateway/live/protocol"
	"github.com/skillforge/interview-gateway/pkg/interview"
	"github.com/skillforge/interview-gateway/pkg/speech"
)

// SpeechConn is the per-session speech gateway connection.
type SpeechConn interface {
	Connect(ctx context.Context, systemPrompt string) error
	SendAudio(data []byte, endOfTurn bool) bool
	SendText(text string, endOfTurn bool) bool
	Chunks() <-chan speech.Chunk
	Err() error
	Disconnect()
}

// AvatarSender relays model audio to the avatar for lip-sync. Failures are
// logged and swallowed; the avatar never affects the audio path.
type AvatarSender interface {
	SendAudio(ctx context.Context, conversationID string, audio []byte) error
}

// Config tunes the per-connection behavior.
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	ReadLimit    int64
	QueueSize    int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 90 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	return c
}

// Deps are the collaborators of one live session.
type Deps struct {
	Registry *interview.Service
	Speech   SpeechConn
	Avatar   AvatarSender
	Logger   *slog.Logger
}

var errSessionClosed = errors.New("session closed")

// Session is one client connection's orchestrator. Create with New, drive
// with Run; Cancel and Notify are safe from other goroutines.
type Session struct {
	cfg  Config
	deps Deps
	sess interview.Session
	ws   *websocket.Conn

	priority chan outboundFrame
	normal   chan outboundFrame

	done     chan struct{}
	doneOnce sync.Once
}

func New(ws *websocket.Conn, sess interview.Session, cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		deps:     deps,
		sess:     sess,
		ws:       ws,
		priority: make(chan outboundFrame, cfg.QueueSize),
		normal:   make(chan outboundFrame, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

// Cancel terminates the session from outside, used by shutdown.
func (s *Session) Cancel() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Notify pushes a status frame to the client ahead of queued audio.
func (s *Session) Notify(status, message string) error {
	return s.enqueue(s.priority, protocol.Status(status, message))
}

// Run drives the session until the client disconnects, the speech connection
// terminates fatally, or the session is cancelled. Teardown never returns a
// panic to the handler; best-effort cleanup is logged only.
func (s *Session) Run(ctx context.Context) error {
	defer s.Cancel()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger := s.deps.Logger.With("session_id", s.sess.ID)

	if err := s.deps.Speech.Connect(ctx, s.sess.SystemPrompt); err != nil {
		logger.Error("speech connect failed", "error", err)
		s.writeDirect(protocol.Error("Failed to connect to interviewer"))
		if merr := s.deps.Registry.MarkError(context.WithoutCancel(ctx), s.sess.ID); merr != nil {
			logger.Warn("status update failed", "error", merr)
		}
		return fmt.Errorf("speech connect: %w", err)
	}
	defer s.deps.Speech.Disconnect()

	if err := s.deps.Registry.MarkInProgress(ctx, s.sess.ID); err != nil {
		logger.Warn("status update failed", "error", err)
	}

	var wg sync.WaitGroup
	writerErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer := &outboundWriter{
			ws:           s.ws,
			ctx:          ctx,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
			priority:     s.priority,
			normal:       s.normal,
		}
		err := writer.Run()
		if err != nil {
			writerErr <- err
		}
		// The socket is unusable once the writer stops.
		s.Cancel()
	}()

	_ = s.Notify("connected", "Ready to start interview")
	if s.sess.AudioOnly() {
		_ = s.enqueue(s.priority, protocol.AvatarUnavailable())
	} else {
		_ = s.enqueue(s.priority, protocol.AvatarReady(s.sess.ConversationURL))
	}

	if !s.deps.Speech.SendText("Start the interview with your greeting.", true) {
		logger.Warn("greeting kickoff failed")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.drainSpeech(ctx, logger)
	}()

	readErr := s.readLoop(ctx, logger)

	cancel()
	s.deps.Speech.Disconnect()
	wg.Wait()

	select {
	case err := <-writerErr:
		logger.Info("stream writer stopped", "error", err)
	default:
	}
	logger.Info("stream connection closed")
	return readErr
}

// drainSpeech is the supervised gateway drain: it forwards model audio to
// the client and the avatar and records transcript samples. If the speech
// connection dies the session is flipped to error so no ready session
// outlives a dead gateway.
func (s *Session) drainSpeech(ctx context.Context, logger *slog.Logger) {
	for chunk := range s.deps.Speech.Chunks() {
		if err := s.enqueue(s.normal, protocol.Audio(chunk.Audio)); err != nil {
			return
		}
		_ = s.Notify("speaking", "Interviewer is responding")

		if s.deps.Avatar != nil && s.sess.AvatarConversationID != "" {
			actx, acancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
			if err := s.deps.Avatar.SendAudio(actx, s.sess.AvatarConversationID, chunk.Audio); err != nil {
				logger.Debug("avatar relay skipped", "error", err)
			}
			acancel()
		}

		entry := interview.TranscriptEntry{
			SessionID:   s.sess.ID,
			Speaker:     interview.SpeakerAI,
			AudioSample: sample(chunk.Audio),
		}
		if _, err := s.deps.Registry.Append(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn("transcript append failed", "error", err)
		}
	}

	if err := s.deps.Speech.Err(); err != nil {
		logger.Error("speech stream terminated", "error", err)
		_ = s.Notify("error", "Lost connection to AI")
		_ = s.enqueue(s.priority, protocol.Error("Lost connection to AI"))
		if merr := s.deps.Registry.MarkError(context.WithoutCancel(ctx), s.sess.ID); merr != nil {
			logger.Warn("status update failed", "error", merr)
		}
	}
}

func (s *Session) readLoop(ctx context.Context, logger *slog.Logger) error {
	s.ws.SetReadLimit(s.cfg.ReadLimit)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		msgType, data, err := s.ws.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("client read: %w", err)
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		switch msgType {
		case websocket.BinaryMessage:
			if !s.deps.Speech.SendAudio(data, false) {
				logger.Warn("audio forward failed", "bytes", len(data))
			}
		case websocket.TextMessage:
			msg, err := protocol.DecodeClientControl(data)
			if err != nil {
				_ = s.enqueue(s.priority, protocol.Error(err.Error()))
				continue
			}
			switch msg.(type) {
			case protocol.ClientEndTurn:
				if s.deps.Speech.SendAudio(nil, true) {
					_ = s.Notify("processing", "Processing your response...")
				} else {
					logger.Warn("end-of-turn forward failed")
				}
			case protocol.ClientPing:
				_ = s.enqueue(s.priority, protocol.Pong())
			}
		}
	}
}

func (s *Session) enqueue(ch chan outboundFrame, frame any) error {
	payload := protocol.Marshal(frame)
	select {
	case ch <- outboundFrame{payload: payload}:
		return nil
	case <-s.done:
		return errSessionClosed
	}
}

// writeDirect is for failures before the writer goroutine exists.
func (s *Session) writeDirect(frame any) {
	_ = s.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = s.ws.WriteMessage(websocket.TextMessage, protocol.Marshal(frame))
}

func sample(audio []byte) []byte {
	n := len(audio)
	if n > interview.MaxAudioSampleBytes {
		n = interview.MaxAudioSampleBytes
	}
	out := make([]byte, n)
	copy(out, audio[:n])
	return out
}
