package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"github.com/epithet-ssh/kvnl/pkg/kvnlhttp"
)

type LoginCLI struct {
	Issuer       string   `help:"OIDC issuer URL (e.g., https://accounts.google.com)"`
	ClientID     string   `name:"client-id" help:"OAuth2 client ID"`
	ClientSecret string   `name:"client-secret" help:"OAuth2 client secret (optional if using PKCE)"`
	Scopes       []string `help:"OAuth2 scopes (comma-separated)" default:"openid,email"`
	TokenFile    string   `help:"Where the token is cached" type:"path" default:"${token_file}"`
}

func (l *LoginCLI) Run(logger *slog.Logger, tlsCfg kvnlhttp.TLSConfig, unifiedConfig cue.Value) error {
	cfg, err := defaults(unifiedConfig)
	if err != nil {
		return err
	}
	issuer := firstNonEmpty(l.Issuer, cfg.OIDC.Issuer)
	clientID := firstNonEmpty(l.ClientID, cfg.OIDC.ClientID, cfg.OIDC.Audience)
	if issuer == "" || clientID == "" {
		return fmt.Errorf("--issuer and --client-id are required (or oidc.issuer and oidc.client_id in a config file)")
	}

	cached, err := readTokenFile(l.TokenFile)
	if err != nil {
		logger.Warn("ignoring unreadable token cache", "path", l.TokenFile, "error", err)
		cached = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	token, err := kvnlhttp.Login(ctx, kvnlhttp.LoginConfig{
		IssuerURL:    issuer,
		ClientID:     clientID,
		ClientSecret: l.ClientSecret,
		Scopes:       splitScopes(l.Scopes),
		TLS:          tlsCfg,
		Logger:       logger,
	}, cached)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(l.TokenFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(l.TokenFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := kvnlhttp.WriteToken(f, token); err != nil {
		f.Close()
		return err
	}
	logger.Info("token saved", "path", l.TokenFile, "expiry", token.Expiry)
	return f.Close()
}

// splitScopes accepts both repeated flags and comma-separated values, and
// always includes openid.
func splitScopes(in []string) []string {
	scopes := []string{"openid"}
	for _, scope := range in {
		for _, part := range strings.Split(scope, ",") {
			part = strings.TrimSpace(part)
			if part != "" && part != "openid" {
				scopes = append(scopes, part)
			}
		}
	}
	return scopes
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "kvnl-token.json"
	}
	return filepath.Join(dir, "kvnl", "token.json")
}
