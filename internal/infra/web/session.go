package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"voice-companion/internal/domain/ports/repository"
	"voice-companion/internal/infra/logging"
	"voice-companion/internal/infra/redis"
)

type ctxKey int

const ctxSessionKey ctxKey = iota

const maxSessionKeyLen = 128

func withSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxSessionKey, key)
}

// SessionKeyFrom returns the resolved session key, or the global key.
func SessionKeyFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxSessionKey).(string); ok && v != "" {
		return v
	}
	return repository.GlobalSessionKey
}

// resolveSessionKey picks the caller's session: a valid token wins, then the
// X-Session-Key header, then the global key. A presented but invalid token
// is rejected rather than silently downgraded.
func (s *Server) resolveSessionKey(r *http.Request) (string, error) {
	if s.d.Auth != nil {
		claims, err := s.d.Auth.ParseFromRequest(r)
		switch {
		case err == nil:
			return claims.SessionKey, nil
		case !errors.Is(err, errMissingToken):
			return "", err
		case s.required:
			return "", err
		}
	}
	if h := strings.TrimSpace(r.Header.Get("X-Session-Key")); h != "" {
		return clampSessionKey(h), nil
	}
	return repository.GlobalSessionKey, nil
}

// clampSessionKey replaces invalid UTF-8 and cuts to maxSessionKeyLen bytes
// on a rune boundary, so the stored key survives a JSON round trip.
func clampSessionKey(h string) string {
	h = strings.ToValidUTF8(h, "\uFFFD")
	if len(h) <= maxSessionKeyLen {
		return h
	}
	cut := maxSessionKeyLen
	for cut > 0 && !utf8.RuneStart(h[cut]) {
		cut--
	}
	return h[:cut]
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := s.resolveSessionKey(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := withSessionKey(r.Context(), key)
		ctx = logging.WithSessID(ctx, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func rateKey(route string) func(*http.Request) string {
	return func(r *http.Request) string {
		return redis.SessionRouteKey(SessionKeyFrom(r.Context()), route)
	}
}

type sessionResponse struct {
	SessionKey string `json:"session_key"`
	Token      string `json:"token,omitempty"`
	ExpiresAt  int64  `json:"expires_at,omitempty"`
}

// handleSession issues a fresh anonymous session. Without a signing secret
// only the key is returned and clients send it as X-Session-Key.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	key := uuid.NewString()
	if s.d.Auth == nil {
		if s.required {
			writeError(w, http.StatusServiceUnavailable, "session signing is not configured")
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse{SessionKey: key})
		return
	}
	tok, exp, err := s.d.Auth.Mint(w, key)
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("mint session token")
		writeError(w, http.StatusInternalServerError, "failed to issue session")
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionKey: key, Token: tok, ExpiresAt: exp.Unix()})
}
