package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

// DefaultTokenTTL is the lifetime of tokens issued by consentctl.
const DefaultTokenTTL = 24 * time.Hour

// Session is the authenticated caller as issued by the host platform.
type Session struct {
	UserID string
	Admin  bool
}

type sessionClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// SessionFromContext returns the caller or false for anonymous requests.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok && s.UserID != ""
}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// OptionalAuth reads an HS256 bearer token signed by the host platform.
// Requests without a valid token continue as anonymous.
func OptionalAuth(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(secret) == 0 || ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			session, err := parseSession(strings.TrimSpace(ah[len("Bearer "):]), secret)
			if err != nil {
				logger.Debug("ignoring invalid session token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func parseSession(raw string, secret []byte) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Session{}, err
	}

	if claims.Subject == "" {
		return Session{}, errors.New("token has no subject")
	}

	return Session{UserID: claims.Subject, Admin: claims.Admin}, nil
}

// IssueToken signs a session token valid for ttl. The host platform owns
// sessions; this is used by consentctl and tests.
func IssueToken(secret []byte, s Session, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Admin: s.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
