package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ms-pricing/internal/config"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	rolesKey   contextKey = "roles"
)

type claims struct {
	Sub         string `json:"sub"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Middleware verifies bearer tokens and puts subject + realm roles into the
// request context. AUTH_MODE=oidc verifies against the configured issuer;
// AUTH_MODE=local accepts HS256 tokens signed with a shared secret so the
// service can run without an identity provider in development.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	verify := buildVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			// Expect "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			c, err := verify(r.Context(), parts[1])
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid token: %v", err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, c.Sub)
			ctx = context.WithValue(ctx, rolesKey, c.RealmAccess.Roles)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on a realm role carried by the token.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, have := range Roles(r.Context()) {
				if have == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, fmt.Sprintf("missing required role %q", role), http.StatusForbidden)
		})
	}
}

func buildVerifier(cfg config.AuthConfig) func(ctx context.Context, rawToken string) (*claims, error) {
	if cfg.Mode == "local" {
		if cfg.LocalSecret == "" {
			panic("AUTH_LOCAL_SECRET must be set when AUTH_MODE=local")
		}
		return func(_ context.Context, rawToken string) (*claims, error) {
			return verifyLocal(rawToken, cfg.LocalSecret)
		}
	}

	if cfg.Issuer == "" {
		panic("OIDC_ISSUER env var not set")
	}
	provider, err := oidc.NewProvider(context.Background(), cfg.Issuer)
	if err != nil {
		panic(fmt.Sprintf("Failed to create OIDC provider: %v", err))
	}
	verifier := provider.Verifier(&oidc.Config{
		SkipClientIDCheck: true,
	})

	return func(ctx context.Context, rawToken string) (*claims, error) {
		idToken, err := verifier.Verify(ctx, rawToken)
		if err != nil {
			return nil, err
		}
		var c claims
		if err := idToken.Claims(&c); err != nil {
			return nil, fmt.Errorf("failed to parse claims: %w", err)
		}
		return &c, nil
	}
}

func verifyLocal(rawToken, secret string) (*claims, error) {
	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	var c claims
	if sub, ok := mapClaims["sub"].(string); ok {
		c.Sub = sub
	}
	if realm, ok := mapClaims["realm_access"].(map[string]interface{}); ok {
		if roles, ok := realm["roles"].([]interface{}); ok {
			for _, r := range roles {
				if s, ok := r.(string); ok {
					c.RealmAccess.Roles = append(c.RealmAccess.Roles, s)
				}
			}
		}
	}
	return &c, nil
}

// Subject extracts the token subject in handlers.
func Subject(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}

// Roles extracts the realm roles in handlers.
func Roles(ctx context.Context) []string {
	if roles, ok := ctx.Value(rolesKey).([]string); ok {
		return roles
	}
	return nil
}
