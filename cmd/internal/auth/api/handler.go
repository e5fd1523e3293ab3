package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"torii/cmd/identity"
	"torii/cmd/internal/auth/session"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler wires the account endpoints to the user directory and the
// session protocol.
type Handler struct {
	log *slog.Logger
	cfg Config

	pool     *pgxpool.Pool
	users    identity.Store
	protocol *session.Service
	metrics  Metrics

	dummyHash string
}

// NewHandler constructs the account API handler. When users or protocol is
// nil (database not configured), the account endpoints answer 503.
func NewHandler(log *slog.Logger, cfg Config, pool *pgxpool.Pool, users identity.Store, protocol *session.Service, metrics Metrics) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		pool:     pool,
		users:    users,
		protocol: protocol,
		metrics:  metrics,
	}

	// Dummy hash for timing-resistant login checks on unknown emails.
	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		h.dummyHash = hash
	}

	return h
}

// Register wires account routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/accounts/signup", h.handleSignup)
	mux.HandleFunc("/accounts/login", h.handleLogin)
	mux.HandleFunc("/accounts/logout", h.handleLogout)
	mux.Handle("/accounts/password", h.RequireAuth(http.HandlerFunc(h.handleChangePassword)))
	mux.Handle("/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.users == nil || h.protocol == nil {
		writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured")
		return false
	}
	return true
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.ready(w) {
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		UserName:     req.UserName,
		EmailAddress: req.EmailAddress,
		Password:     req.Password,
		Now:          now,
	})
	switch {
	case err == nil:
	case identity.IsConflict(err):
		writeError(w, http.StatusBadRequest, "conflict", "username or email already registered")
		return
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid signup fields")
		return
	default:
		h.log.Error("auth.signup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	ip := clientIP(r, h.cfg.TrustProxy)
	h.auditSignup(ctx, u.ID, ip, strings.TrimSpace(r.UserAgent()))

	writeJSON(w, http.StatusCreated, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.ready(w) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	identifier := identity.NormalizeEmail(req.EmailAddress)
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	if blocked, retryAfter, err := h.checkLoginIPThrottle(ctx, ip, now); err != nil {
		h.log.Error("auth.login.throttle_ip.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter, err := h.checkLoginIdentifierThrottle(ctx, identifier, now); err != nil {
		h.log.Error("auth.login.throttle_identifier.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	} else if blocked {
		h.auditLoginRateLimited(ctx, ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.users.GetByEmail(ctx, identifier)
	if err != nil {
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
		}
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		h.metrics.LoginAttempt(false)
		h.auditLoginFailed(ctx, nil, ip, ua, identifier, "not_found")
		writeUnauthorized(w)
		return
	}

	ok, err := identity.VerifyPassword(req.Password, u.HashedPassword)
	if err != nil || !ok {
		h.metrics.LoginAttempt(false)
		h.auditLoginFailed(ctx, &u.ID, ip, ua, identifier, "bad_password")
		writeUnauthorized(w)
		return
	}

	if !u.IsActive {
		h.metrics.LoginAttempt(false)
		h.auditLoginFailed(ctx, &u.ID, ip, ua, identifier, "inactive")
		writeUnauthorized(w)
		return
	}

	issued, err := h.protocol.Login(ctx, now, u.ID)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	if err := h.users.RecordLogin(ctx, u.ID, now); err != nil {
		// Best effort; login stands even if the stamp fails.
		h.log.Warn("auth.login.stamp.fail", "err", err)
	}

	h.metrics.LoginAttempt(true)
	h.auditLoginSuccess(ctx, u.ID, issued.SessionID, ip, ua)
	h.setSessionCookies(w, issued)
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	sessionID := cookieValue(r, cookieSessionID)

	// Logout needs no valid credentials: deleting the record and dropping
	// the cookies is safe and idempotent even for strangers.
	if h.protocol != nil && sessionID != "" {
		if err := h.protocol.Logout(ctx, sessionID); err != nil {
			h.log.Error("auth.logout.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
			return
		}
		ip := clientIP(r, h.cfg.TrustProxy)
		h.auditLogout(ctx, sessionID, ip, strings.TrimSpace(r.UserAgent()))
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged_out"})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.ready(w) {
		return
	}

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	sessionID, _ := SessionIDFromContext(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		h.log.Error("auth.password.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	ok, err = identity.VerifyPassword(req.CurrentPassword, u.HashedPassword)
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, "invalid_password", "current password is incorrect")
		return
	}

	newHash, err := identity.HashPassword(req.NewPassword, identity.DefaultArgon2idParams())
	if err != nil {
		if errors.Is(err, identity.ErrPasswordTooShort) || errors.Is(err, identity.ErrPasswordTooLong) {
			writeError(w, http.StatusBadRequest, "invalid_request", "new password fails policy")
			return
		}
		h.log.Error("auth.password.hash.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	if err := h.users.ChangePassword(ctx, userID, newHash, now); err != nil {
		h.log.Error("auth.password.update.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	// The live session is invalidated; the client signs in again with the
	// new password.
	if err := h.protocol.InvalidateOnPasswordChange(ctx, sessionID); err != nil {
		h.log.Error("auth.password.invalidate.fail", "err", err)
	}

	ip := clientIP(r, h.cfg.TrustProxy)
	h.auditPasswordChanged(ctx, userID, sessionID, ip, strings.TrimSpace(r.UserAgent()))

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, statusResponse{Status: "password_changed"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.ready(w) {
		return
	}

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeUnauthorized(w)
			return
		}
		h.log.Error("auth.me.lookup.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "server_busy", "please retry later")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
