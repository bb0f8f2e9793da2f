package kvnlhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/int128/oauth2cli"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

// LoginConfig configures the interactive OIDC login used to obtain a bearer
// token for a protected server.
type LoginConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string // Optional with PKCE
	Scopes       []string
	TLS          TLSConfig

	// OpenURL opens the authorization page. Default: the system browser.
	OpenURL func(url string) error
	Logger  *slog.Logger
}

// Login returns a usable token: cached if it is still valid, refreshed if it
// has a refresh token, and otherwise obtained through the browser. When the
// provider issues an ID token it replaces the access token, since the server
// validates ID tokens.
func Login(ctx context.Context, cfg LoginConfig, cached *oauth2.Token) (*oauth2.Token, error) {
	if cached != nil && cached.Valid() {
		return cached, nil
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	httpClient, err := NewHTTPClient(cfg.TLS)
	if err != nil {
		return nil, err
	}
	ctx = oidc.ClientContext(ctx, httpClient)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email"}
	}
	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	if cached != nil && cached.RefreshToken != "" {
		refreshed, err := oauth2Config.TokenSource(ctx, cached).Token()
		if err == nil {
			cfg.Logger.Debug("refreshed token")
			return bearer(refreshed), nil
		}
		cfg.Logger.Info("token refresh failed, performing full authentication", "error", err)
	}
	token, err := browserLogin(ctx, cfg, oauth2Config)
	if err != nil {
		return nil, err
	}
	return bearer(token), nil
}

func bearer(token *oauth2.Token) *oauth2.Token {
	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return token
	}
	out := *token
	out.AccessToken = idToken
	out.TokenType = "Bearer"
	return &out
}

// browserLogin runs the authorization code flow with PKCE on a local callback
// server.
func browserLogin(ctx context.Context, cfg LoginConfig, oauth2Config oauth2.Config) (*oauth2.Token, error) {
	open := cfg.OpenURL
	if open == nil {
		open = browser.OpenURL
	}

	verifier := oauth2.GenerateVerifier()
	ready := make(chan string, 1)
	flow := oauth2cli.Config{
		OAuth2Config: oauth2Config,
		AuthCodeOptions: []oauth2.AuthCodeOption{
			oauth2.AccessTypeOffline,
			oauth2.S256ChallengeOption(verifier),
		},
		TokenRequestOptions:  []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)},
		LocalServerReadyChan: ready,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case u := <-ready:
			cfg.Logger.Info("opening browser for authentication", "url", u)
			if err := open(u); err != nil {
				cfg.Logger.Warn("could not open browser, visit the URL manually", "url", u, "error", err)
			}
		case <-ctx.Done():
		}
	}()

	token, err := oauth2cli.GetToken(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return token, nil
}

// ReadToken reads a JSON-encoded token. An empty input yields nil.
func ReadToken(r io.Reader) (*oauth2.Token, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return &token, nil
}

// WriteToken writes a token as JSON.
func WriteToken(w io.Writer, token *oauth2.Token) error {
	return json.NewEncoder(w).Encode(token)
}
