package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bher20/tarifmanager/internal/storage"
)

type tokenKey struct{}

// TokenFrom returns the validated token carried by ctx, if any.
func TokenFrom(ctx context.Context) (*storage.Token, bool) {
	t, ok := ctx.Value(tokenKey{}).(*storage.Token)
	return t, ok
}

// WithToken returns a copy of ctx carrying t.
func WithToken(ctx context.Context, t *storage.Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

func deny(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="tarifmanager"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// bearer extracts the credentials of an Authorization header. The scheme is
// matched case-insensitively.
func bearer(header string) (string, bool) {
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// Middleware validates a bearer token when one is present and stores it on
// the request context. Requests without an Authorization header pass through
// anonymous; RequirePermission decides whether that is enough.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := bearer(header)
		if !ok {
			deny(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}
		token, err := s.ValidateToken(r.Context(), raw)
		switch {
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
			deny(w, http.StatusUnauthorized, err.Error())
			return
		case err != nil:
			log.Error().Err(err).Msg("token lookup failed")
			deny(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// RequirePermission lets the request through only when its token role may
// perform act on obj.
func (s *Service) RequirePermission(obj, act string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := TokenFrom(r.Context())
		if !ok {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		allowed, err := s.Enforce(token.Role, obj, act)
		switch {
		case err != nil:
			deny(w, http.StatusInternalServerError, "authorization failed")
		case !allowed:
			deny(w, http.StatusForbidden, token.Role+" may not "+act+" "+obj)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
