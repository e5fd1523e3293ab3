package authapi

import (
	"net/http"
	"strings"
	"time"

	"torii/cmd/internal/auth/session"
)

// Cookie names carried by the browser. All three travel together; the
// middleware treats a partial set as no credentials at all.
const (
	cookieSessionID    = "session_id"
	cookieAccessToken  = "access_token"
	cookieRefreshToken = "refresh_token"
)

// setSessionCookies writes the issued credentials as session-bound cookies.
// No Expires/Max-Age: the browser discards them when the session ends, and
// server-side expiry is authoritative regardless.
func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) {
	h.setCookie(w, cookieSessionID, issued.SessionID)
	h.setCookie(w, cookieAccessToken, issued.AccessToken)
	h.setCookie(w, cookieRefreshToken, issued.RefreshToken)
}

// clearSessionCookies expires all three credential cookies.
func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, cookieSessionID)
	h.expireCookie(w, cookieAccessToken)
	h.expireCookie(w, cookieRefreshToken)
}

// presentationFromRequest collects whatever credential cookies the request
// carries. Missing cookies come back as empty strings; the protocol decides
// what an incomplete set means.
func presentationFromRequest(r *http.Request) session.Presentation {
	return session.Presentation{
		SessionID:    cookieValue(r, cookieSessionID),
		AccessToken:  cookieValue(r, cookieAccessToken),
		RefreshToken: cookieValue(r, cookieRefreshToken),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
