package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
)

// defaultTokenTTL bounds issued tokens when no ttl is configured.
const defaultTokenTTL = 24 * time.Hour

// AuthConfig configures bearer-token verification. An empty Secret disables auth.
type AuthConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Enabled reports whether requests must carry a token.
func (c AuthConfig) Enabled() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// Claims are the token claims pipedesk issues and accepts.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject.
func IssueToken(cfg AuthConfig, subject, name string, now time.Time) (string, error) {
	if !cfg.Enabled() {
		return "", fmt.Errorf("issue token: jwt secret is not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("issue token: subject is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	claims := Claims{
		Name: strings.TrimSpace(name),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    strings.TrimSpace(cfg.Issuer),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken verifies one token and returns its claims.
func ParseToken(cfg AuthConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(common.ErrUnauthorized, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token has no subject: %w", common.ErrUnauthorized)
	}
	return claims, nil
}

// RequireBearer authenticates requests and attaches the caller as the context actor.
// The token is read from the Authorization header, or the access_token query parameter
// for websocket upgrades.
func RequireBearer(cfg AuthConfig, next http.Handler) http.Handler {
	if !cfg.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authorization header required", "Send 'Authorization: Bearer <token>'.")
			return
		}
		claims, err := ParseToken(cfg, tokenString)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid token", "")
			return
		}
		ctx := app.WithActor(r.Context(), app.Actor{ID: claims.Subject, Name: claims.Name})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
		return token, true
	}
	return "", false
}
