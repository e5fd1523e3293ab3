package authapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"torii/cmd/internal/auth/session"
)

type contextKey struct{ name string }

var (
	userIDKey    = &contextKey{"user_id"}
	sessionIDKey = &contextKey{"session_id"}
)

// UserIDFromContext returns the authenticated user id set by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// SessionIDFromContext returns the session id set by RequireAuth.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}

// RequireAuth gates a handler behind the session protocol.
//
// An admitted request proceeds with the user id in its context. When the
// protocol rotates the token pair, the fresh cookies ride along on the
// response. Every rejection, store outage included, clears the cookies and
// returns the same 401 body; the rejection kind surfaces only in logs and
// metrics, never to the client.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.protocol == nil {
			writeError(w, http.StatusServiceUnavailable, "auth_unavailable", "authentication not configured")
			return
		}

		ctx := r.Context()
		now := time.Now().UTC()
		pres := presentationFromRequest(r)

		dec, err := h.protocol.Authenticate(ctx, now, pres)
		if err != nil {
			if errors.Is(err, session.ErrStoreUnavailable) {
				h.log.Error("auth.decide.store_unavailable", "err", err)
				h.metrics.AuthDecision("unavailable")
			} else {
				h.metrics.AuthDecision("rejected")
			}
			h.clearSessionCookies(w)
			writeUnauthorized(w)
			return
		}

		if dec.Rotated != nil {
			h.metrics.AuthDecision("rotated")
			h.setSessionCookies(w, *dec.Rotated)
			ip := clientIP(r, h.cfg.TrustProxy)
			h.auditSessionRotated(ctx, dec.UserID, dec.Rotated.SessionID, ip, strings.TrimSpace(r.UserAgent()))
		} else {
			h.metrics.AuthDecision("admitted")
		}

		ctx = context.WithValue(ctx, userIDKey, dec.UserID)
		ctx = context.WithValue(ctx, sessionIDKey, pres.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
