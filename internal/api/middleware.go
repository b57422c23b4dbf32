package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/skupaj/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// RevocationChecker reports whether a token ID has been logged out.
type RevocationChecker interface {
	TokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Authenticator validates bearer tokens.
type Authenticator struct {
	Tokens  auth.Issuer
	Revoked RevocationChecker
}

// claims returns the request's claims, nil when no token was sent, or an
// error message when the token is unusable.
func (a Authenticator) claims(r *http.Request) (*auth.Claims, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, "missing or invalid authorization header"
	}

	claims, err := a.Tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return nil, "invalid token"
	}
	if a.Revoked != nil {
		revoked, err := a.Revoked.TokenRevoked(r.Context(), claims.ID)
		if err != nil {
			slog.Error("checking token revocation failed", "error", err)
			return nil, "invalid token"
		}
		if revoked {
			return nil, "token has been revoked"
		}
	}
	return claims, ""
}

// Require rejects requests without a valid token.
func (a Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, msg := a.claims(r)
		if claims == nil {
			if msg == "" {
				msg = "not authenticated"
			}
			jsonError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// Optional lets guests through but still rejects a bad token.
func (a Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, msg := a.claims(r)
		if msg != "" {
			jsonError(w, http.StatusUnauthorized, msg)
			return
		}
		if claims != nil {
			r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
		}
		next.ServeHTTP(w, r)
	})
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// viewerID returns the authenticated user's ID, or 0 for a guest.
func viewerID(ctx context.Context) int64 {
	if c := GetClaims(ctx); c != nil {
		return c.UserID
	}
	return 0
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
