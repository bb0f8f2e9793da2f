package kvnlhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	// Issuer is the OIDC provider issuer URL (e.g., "https://accounts.google.com")
	Issuer string

	// Audience is the expected audience claim. If empty, the audience is not checked.
	Audience string

	// TLS configures TLS for OIDC discovery.
	TLS TLSConfig
}

// Claims identifies the caller of an authenticated request.
type Claims struct {
	// Identity is the email claim, or the subject if there is no email.
	Identity string
	Subject  string
	Email    string
}

// Validator checks OIDC ID tokens presented as bearer tokens.
type Validator struct {
	verifier *oidc.IDTokenVerifier
}

// NewValidator performs OIDC discovery for cfg.Issuer.
func NewValidator(ctx context.Context, cfg AuthConfig) (*Validator, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	httpClient, err := NewHTTPClient(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	ctx = oidc.ClientContext(ctx, httpClient)

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider for %s: %w", cfg.Issuer, err)
	}
	return &Validator{verifier: provider.Verifier(verifierConfig(cfg))}, nil
}

// NewStaticValidator checks tokens against fixed keys, without discovery.
func NewStaticValidator(cfg AuthConfig, keys oidc.KeySet) *Validator {
	return &Validator{verifier: oidc.NewVerifier(cfg.Issuer, keys, verifierConfig(cfg))}
}

func verifierConfig(cfg AuthConfig) *oidc.Config {
	return &oidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.Audience == "",
	}
}

// Validate verifies a token and extracts the caller's identity.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var extra struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}

	claims := &Claims{Subject: idToken.Subject, Email: extra.Email, Identity: extra.Email}
	if claims.Identity == "" {
		claims.Identity = idToken.Subject
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFromContext returns the claims of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Middleware rejects requests without a valid bearer token.
func (v *Validator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := parseAuthHeader(r)
		if err == nil {
			var claims *Claims
			if claims, err = v.Validate(r.Context(), token); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="kvnl"`)
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})
}

// parseAuthHeader extracts the Bearer token from the Authorization header.
func parseAuthHeader(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errors.New("missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", errors.New("Authorization header must use Bearer scheme")
	}

	token := strings.TrimPrefix(auth, prefix)
	if token == "" {
		return "", errors.New("empty Bearer token")
	}
	return token, nil
}
