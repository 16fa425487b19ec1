// Package avatar is the REST client for the conversational video service
// that renders the interviewer. The avatar is strictly optional: every call
// here is best-effort from the session's point of view.
package avatar

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/interview-gateway/pkg/interview"
)

const defaultBaseURL = "https://tavusapi.com/v2"

// Config carries the avatar service credentials and defaults.
type Config struct {
	APIKey    string
	BaseURL   string
	ReplicaID string
	// Timeout bounds each HTTP call. Defaults to 10s.
	Timeout time.Duration
}

// Client talks to the avatar service over HTTPS with an x-api-key header.
// Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("avatar: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Persona is the avatar-side behavior definition for one interview.
type Persona struct {
	PersonaID string `json:"persona_id"`
	Name      string `json:"persona_name"`
}

// Conversation is a live avatar video session. ConversationURL is the WebRTC
// room the client embeds.
type Conversation struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
}

// Replica is a selectable avatar appearance.
type Replica struct {
	ReplicaID   string `json:"replica_id"`
	ReplicaName string `json:"replica_name"`
	Status      string `json:"status"`
}

// CreatePersona registers an interview persona bound to the configured
// replica.
func (c *Client) CreatePersona(ctx context.Context, name, systemPrompt string) (Persona, error) {
	payload := map[string]string{
		"persona_name":       name,
		"system_prompt":      systemPrompt,
		"default_replica_id": c.cfg.ReplicaID,
	}
	var out Persona
	if err := c.do(ctx, http.MethodPost, "/personas", payload, &out); err != nil {
		return Persona{}, err
	}
	c.logger.Info("avatar persona created", "persona_id", out.PersonaID)
	return out, nil
}

// NewConversation starts a video session for a persona and returns the room
// handle.
func (c *Client) NewConversation(ctx context.Context, personaID string) (Conversation, error) {
	payload := map[string]string{
		"replica_id":        c.cfg.ReplicaID,
		"persona_id":        personaID,
		"conversation_name": "Interview_" + uuid.NewString()[:8],
	}
	var out Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", payload, &out); err != nil {
		return Conversation{}, err
	}
	c.logger.Info("avatar conversation created",
		"conversation_id", out.ConversationID, "url", out.ConversationURL)
	return out, nil
}

// CreateConversation provisions persona plus conversation in one step. It
// implements interview.AvatarProvider.
func (c *Client) CreateConversation(ctx context.Context, name, systemPrompt string) (interview.AvatarConversation, error) {
	persona, err := c.CreatePersona(ctx, name, systemPrompt)
	if err != nil {
		return interview.AvatarConversation{}, err
	}
	conv, err := c.NewConversation(ctx, persona.PersonaID)
	if err != nil {
		return interview.AvatarConversation{}, err
	}
	return interview.AvatarConversation{
		PersonaID:      persona.PersonaID,
		ConversationID: conv.ConversationID,
		URL:            conv.ConversationURL,
	}, nil
}

// SendAudio pushes one audio chunk to the avatar for lip-sync.
func (c *Client) SendAudio(ctx context.Context, conversationID string, audio []byte) error {
	payload := map[string]string{
		"audio": base64.StdEncoding.EncodeToString(audio),
	}
	return c.do(ctx, http.MethodPost, "/conversations/"+conversationID+"/speak", payload, nil)
}

// EndConversation stops avatar rendering for a session.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversations/"+conversationID, nil, nil); err != nil {
		return err
	}
	c.logger.Info("avatar conversation ended", "conversation_id", conversationID)
	return nil
}

// GetConversation returns the current session state on the avatar side.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	var out Conversation
	err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID, nil, &out)
	return out, err
}

// ListReplicas returns the selectable avatar appearances.
func (c *Client) ListReplicas(ctx context.Context) ([]Replica, error) {
	var out struct {
		Data []Replica `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/replicas", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("avatar: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("avatar: build request: %w", err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("avatar: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("avatar: %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("avatar: decode response: %w", err)
	}
	return nil
}
