// Package speech owns the bidirectional websocket to the Gemini Live speech
// endpoint on Vertex AI. One Client serves one interview session.
package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the connection lifecycle. Transitions are driven by Connect,
// Disconnect, and the read loop; there is no reconnect.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Chunk is one inbound audio payload from the model. Audio is raw PCM at
// 24kHz mono.
type Chunk struct {
	Audio []byte
}

// Config locates the Vertex AI live endpoint.
type Config struct {
	ProjectID string
	Location  string
	Model     string
	// BaseURL overrides the endpoint host, used by tests. Empty means the
	// regional Vertex AI host.
	BaseURL string
}

func (c Config) endpoint() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf(
		"wss://%s-aiplatform.googleapis.com/ws/google.cloud.aiplatform.v1beta1.LlmBidiService/BidiGenerateContent",
		c.Location)
}

func (c Config) modelResource() string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		c.ProjectID, c.Location, c.Model)
}

// Client is one live speech connection. Writes are serialized by writeMu;
// reads happen on the internal read loop which feeds Chunks.
type Client struct {
	cfg    Config
	tokens TokenProvider
	logger *slog.Logger

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	writeMu sync.Mutex

	chunks    chan Chunk
	closed    chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	lastErr error
}

func NewClient(cfg Config, tokens TokenProvider, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("speech: project id is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-exp"
	}
	if tokens == nil {
		return nil, fmt.Errorf("speech: token provider is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		state:  StateDisconnected,
		chunks: make(chan Chunk, 256),
		closed: make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the endpoint, sends the session setup frame, and starts the
// read loop. Credential and dial failures are returned; the caller treats
// them as session-fatal.
func (c *Client) Connect(ctx context.Context, systemPrompt string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("speech: connect in state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.fail(err)
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Type", "application/json")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.endpoint(), header)
	if err != nil {
		err = fmt.Errorf("speech: dial: %w", err)
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	setup := map[string]any{
		"setup": map[string]any{
			"model": c.cfg.modelResource(),
			"generation_config": map[string]any{
				"response_modalities": []string{"AUDIO"},
			},
			"system_instruction": map[string]any{
				"parts": []map[string]string{{"text": systemPrompt}},
			},
		},
	}
	if err := c.writeJSON(setup); err != nil {
		err = fmt.Errorf("speech: send setup: %w", err)
		c.fail(err)
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info("speech connection established", "model", c.cfg.Model)
	return nil
}

// SendAudio forwards one PCM chunk (16kHz mono). With endOfTurn set and an
// empty payload, exactly one end-of-turn frame is sent. Returns false on any
// send failure; a mid-stream drop is not fatal to the session.
func (c *Client) SendAudio(data []byte, endOfTurn bool) bool {
	if c.State() != StateConnected {
		return false
	}
	if len(data) > 0 {
		frame := map[string]any{
			"realtimeInput": map[string]any{
				"mediaChunks": []map[string]string{{
					"data":     base64.StdEncoding.EncodeToString(data),
					"mimeType": "audio/pcm",
				}},
			},
		}
		if err := c.writeJSON(frame); err != nil {
			c.logger.Warn("speech audio send failed", "error", err)
			return false
		}
	}
	if endOfTurn {
		frame := map[string]any{
			"realtimeInput": map[string]any{
				"audioStreamEnd": true,
			},
		}
		if err := c.writeJSON(frame); err != nil {
			c.logger.Warn("speech end-of-turn send failed", "error", err)
			return false
		}
	}
	return true
}

// SendText sends a user text turn, used to kick off the interviewer greeting.
func (c *Client) SendText(text string, endOfTurn bool) bool {
	if c.State() != StateConnected {
		return false
	}
	frame := map[string]any{
		"clientContent": map[string]any{
			"turns": []map[string]any{{
				"role":  "user",
				"parts": []map[string]string{{"text": text}},
			}},
			"turnComplete": endOfTurn,
		},
	}
	if err := c.writeJSON(frame); err != nil {
		c.logger.Warn("speech text send failed", "error", err)
		return false
	}
	return true
}

// Chunks is the inbound audio stream. The channel is closed when the
// connection terminates; Err reports whether termination was a failure.
func (c *Client) Chunks() <-chan Chunk {
	return c.chunks
}

// Err returns the terminal error, nil after a clean remote close or local
// Disconnect.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Disconnect closes the connection. Safe to call repeatedly and from any
// goroutine.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		conn := c.conn
		if c.state != StateError {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		}
	})
}

type serverFrame struct {
	ServerContent *struct {
		ModelTurn *struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		TurnComplete bool `json:"turnComplete"`
	} `json:"serverContent"`
	SetupComplete json.RawMessage `json:"setupComplete"`
	Error         json.RawMessage `json:"error"`
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer close(c.chunks)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				// Local disconnect already set the state.
			default:
				if websocket.IsCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("speech connection closed by remote")
					c.setState(StateDisconnected)
				} else {
					c.fail(fmt.Errorf("speech: read: %w", err))
				}
			}
			return
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("speech frame parse failed", "error", err)
			continue
		}

		switch {
		case len(frame.Error) > 0:
			c.fail(fmt.Errorf("speech: server error: %s", string(frame.Error)))
			return
		case len(frame.SetupComplete) > 0:
			c.logger.Debug("speech setup acknowledged")
		case frame.ServerContent != nil && frame.ServerContent.ModelTurn != nil:
			for _, part := range frame.ServerContent.ModelTurn.Parts {
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "audio/") {
					audio, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
					if err != nil {
						c.logger.Warn("speech audio decode failed", "error", err)
						continue
					}
					select {
					case c.chunks <- Chunk{Audio: audio}:
					case <-c.closed:
						return
					}
				} else if part.Text != "" {
					c.logger.Info("speech text part", "text", truncate(part.Text, 100))
				}
			}
		}
	}
}

func (c *Client) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("speech: no connection")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(payload)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) fail(err error) {
	c.errMu.Lock()
	if c.lastErr == nil {
		c.lastErr = err
	}
	c.errMu.Unlock()
	c.setState(StateError)
	c.logger.Error("speech connection failed", "error", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
