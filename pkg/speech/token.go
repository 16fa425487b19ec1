package speech

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenProvider supplies the bearer credential for the speech endpoint.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// GoogleTokenProvider uses Application Default Credentials. The underlying
// token source caches the access token and refreshes it only when expired.
type GoogleTokenProvider struct {
	source oauth2.TokenSource
}

// NewGoogleTokenProvider resolves ADC with the cloud-platform scope.
func NewGoogleTokenProvider(ctx context.Context) (*GoogleTokenProvider, error) {
	creds, err := google.FindDefaultCredentials(ctx,
		"https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("speech: resolve credentials: %w", err)
	}
	return &GoogleTokenProvider{
		source: oauth2.ReuseTokenSource(nil, creds.TokenSource),
	}, nil
}

func (p *GoogleTokenProvider) Token(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", fmt.Errorf("speech: fetch access token: %w", err)
	}
	return tok.AccessToken, nil
}

// StaticTokenProvider returns a fixed credential. Used by tests and by
// deployments that inject a token through the environment.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(context.Context) (string, error) {
	if p == "" {
		return "", fmt.Errorf("speech: empty static token")
	}
	return string(p), nil
}
