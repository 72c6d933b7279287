// Package identity verifies Google identity tokens and builds the consent URL.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// DefaultTokenInfoURL is Google's token introspection endpoint.
const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var ErrInvalidToken = errors.New("invalid identity token")

// Identity is a verified external subject.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
	AvatarURL   string
}

// GoogleConfig configures the verifier and the consent URL.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenInfoURL string
}

// Google verifies ID tokens against the tokeninfo endpoint.
type Google struct {
	tokenInfoURL string
	clientID     string
	http         *http.Client
	oauth        *oauth2.Config
	logger       *zap.Logger
}

// NewGoogle creates a Google verifier. A nil client uses a 10s timeout client.
func NewGoogle(cfg GoogleConfig, client *http.Client, logger *zap.Logger) *Google {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tokenInfo := cfg.TokenInfoURL
	if tokenInfo == "" {
		tokenInfo = DefaultTokenInfoURL
	}
	return &Google{
		tokenInfoURL: tokenInfo,
		clientID:     cfg.ClientID,
		http:         client,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		logger: logger,
	}
}

// LoginURL returns the consent URL the frontend redirects to.
func (g *Google) LoginURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

type tokenInfo struct {
	Sub     string `json:"sub"`
	Aud     string `json:"aud"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify exchanges an ID token for the identity it asserts.
func (g *Google) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	u := g.tokenInfoURL + "?" + url.Values{"id_token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build tokeninfo request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		g.logger.Warn("tokeninfo request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: tokeninfo status %d", ErrInvalidToken, resp.StatusCode)
	}
	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode tokeninfo: %w", ErrInvalidToken, err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if g.clientID != "" && info.Aud != g.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	return &Identity{
		SubjectID:   info.Sub,
		Email:       info.Email,
		DisplayName: name,
		AvatarURL:   info.Picture,
	}, nil
}
