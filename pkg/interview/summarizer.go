package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Summarizer turns an interview transcript into evaluation text for the
// report parser. Implementations must respect ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// GeminiSummarizer evaluates transcripts with a Gemini text model.
type GeminiSummarizer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiSummarizer builds a summarizer on the Gemini API. Model defaults
// to gemini-2.0-flash when empty.
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiSummarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("summarizer: api key required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	return &GeminiSummarizer{client: client, model: model, timeout: timeout}, nil
}

func (g *GeminiSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("summarizer: generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("summarizer: empty response")
	}
	return text, nil
}
