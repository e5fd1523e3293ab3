package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"torii/cmd/identity"
	"torii/cmd/internal/auth/session"
)

// fakeUserStore implements identity.Store in memory. Its IsActive signature
// doubles as the protocol's directory.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]identity.User // by id
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]identity.User)}
}

func fastParams() identity.Argon2idParams {
	return identity.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (s *fakeUserStore) CreateUser(_ context.Context, in identity.CreateUserInput) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	userName := identity.NormalizeUserName(in.UserName)
	if err := identity.ValidateUserName(userName); err != nil {
		return identity.User{}, err
	}
	email := identity.NormalizeEmail(in.EmailAddress)
	if err := identity.ValidateEmail(email); err != nil {
		return identity.User{}, err
	}
	for _, u := range s.users {
		if u.UserName == userName {
			return identity.User{}, identity.ConflictError{Op: "fake.CreateUser", Field: "user_name"}
		}
		if u.EmailAddress == email {
			return identity.User{}, identity.ConflictError{Op: "fake.CreateUser", Field: "email_address"}
		}
	}

	hash, err := identity.HashPassword(in.Password, fastParams())
	if err != nil {
		return identity.User{}, identity.OpError{Op: "fake.CreateUser", Kind: identity.ErrInvalidInput, Msg: err.Error()}
	}

	u := identity.User{
		ID:             identity.NewUserID(),
		UserName:       userName,
		EmailAddress:   email,
		HashedPassword: hash,
		IsActive:       true,
		CreatedAt:      in.Now,
		UpdatedAt:      in.Now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = identity.NormalizeEmail(email)
	for _, u := range s.users {
		if u.EmailAddress == email {
			return u, nil
		}
	}
	return identity.User{}, identity.NotFoundError{Op: "fake.GetByEmail", Resource: "user"}
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "fake.GetByID", Resource: "user"}
	}
	return u, nil
}

func (s *fakeUserStore) IsActive(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return ok && u.IsActive, nil
}

func (s *fakeUserStore) RecordLogin(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.NotFoundError{Op: "fake.RecordLogin", Resource: "user"}
	}
	u.LastLoggedInAt = &now
	u.UpdatedAt = now
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) ChangePassword(_ context.Context, id string, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.NotFoundError{Op: "fake.ChangePassword", Resource: "user"}
	}
	u.HashedPassword = hash
	u.UpdatedAt = now
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	u.IsActive = false
	s.users[id] = u
}

type testEnv struct {
	server *httptest.Server
	client *http.Client
	users  *fakeUserStore
}

func newTestEnv(t *testing.T, sessCfg session.Config) *testEnv {
	t.Helper()

	signer, err := session.NewHS256Signer("handler-test-secret")
	if err != nil {
		t.Fatalf("NewHS256Signer: %v", err)
	}

	users := newFakeUserStore()
	protocol := session.NewService(sessCfg, signer, session.NewMemoryStore(), users, nil)

	// The test server speaks plain HTTP; a Secure cookie would never leave
	// the jar.
	cfg := Config{
		CookiePath:     "/",
		CookieSecure:   false,
		CookieSameSite: http.SameSiteLaxMode,
		MaxBodyBytes:   1 << 20,
	}

	h := NewHandler(nil, cfg, nil, users, protocol, nil)
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}

	return &testEnv{
		server: srv,
		client: &http.Client{Jar: jar},
		users:  users,
	}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := e.client.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func (e *testEnv) signupAndLogin(t *testing.T, email, password string) {
	t.Helper()

	resp := e.postJSON(t, "/accounts/signup", signupRequest{
		UserName:     strings.SplitN(email, "@", 2)[0],
		EmailAddress: email,
		Password:     password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}

	resp = e.postJSON(t, "/accounts/login", loginRequest{EmailAddress: email, Password: password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
}

func decodeMe(t *testing.T, resp *http.Response) meResponse {
	t.Helper()
	defer resp.Body.Close()
	var out meResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestSignupValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())

	resp := env.postJSON(t, "/accounts/signup", signupRequest{
		UserName:     "valid.name",
		EmailAddress: "valid@example.com",
		Password:     "a-long-enough-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, want 201", resp.StatusCode)
	}

	// Duplicate email.
	resp = env.postJSON(t, "/accounts/signup", signupRequest{
		UserName:     "other.name",
		EmailAddress: "valid@example.com",
		Password:     "a-long-enough-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate signup status = %d, want 400", resp.StatusCode)
	}

	// Short password.
	resp = env.postJSON(t, "/accounts/signup", signupRequest{
		UserName:     "short.pass",
		EmailAddress: "short@example.com",
		Password:     "short",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("weak password signup status = %d, want 400", resp.StatusCode)
	}
}

func TestLoginRejectionsAreUniform(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())
	env.signupAndLogin(t, "uniform@example.com", "a-long-enough-password")

	readBody := func(resp *http.Response) string {
		t.Helper()
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return buf.String()
	}

	// Unknown email and wrong password must be indistinguishable.
	respUnknown := env.postJSON(t, "/accounts/login", loginRequest{
		EmailAddress: "nobody@example.com",
		Password:     "a-long-enough-password",
	})
	bodyUnknown := readBody(respUnknown)

	respWrong := env.postJSON(t, "/accounts/login", loginRequest{
		EmailAddress: "uniform@example.com",
		Password:     "not-the-password",
	})
	bodyWrong := readBody(respWrong)

	if respUnknown.StatusCode != http.StatusUnauthorized || respWrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want 401, 401", respUnknown.StatusCode, respWrong.StatusCode)
	}
	if bodyUnknown != bodyWrong {
		t.Fatalf("rejection bodies differ:\n%s\n%s", bodyUnknown, bodyWrong)
	}
}

func TestLoginSetsSessionCookiesAndMeWorks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())
	env.signupAndLogin(t, "momo@example.com", "a-long-enough-password")

	// The jar now holds all three cookies.
	u := env.server.URL
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	names := map[string]bool{}
	for _, c := range env.client.Jar.Cookies(req.URL) {
		names[c.Name] = true
	}
	for _, want := range []string{"session_id", "access_token", "refresh_token"} {
		if !names[want] {
			t.Fatalf("cookie %q missing from jar (have %v)", want, names)
		}
	}

	resp := env.get(t, "/me")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/me status = %d, want 200", resp.StatusCode)
	}
	me := decodeMe(t, resp)
	if me.User.EmailAddress != "momo@example.com" {
		t.Fatalf("/me user = %+v", me.User)
	}
}

func TestMeWithoutCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())

	resp := env.get(t, "/me")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/me status = %d, want 401", resp.StatusCode)
	}

	// Rejection clears whatever cookies the client held.
	cleared := 0
	for _, c := range resp.Cookies() {
		if c.MaxAge == -1 {
			cleared++
		}
	}
	if cleared != 3 {
		t.Fatalf("expected 3 clearing cookies, got %d", cleared)
	}
}

func TestSilentRotationThroughMiddleware(t *testing.T) {
	t.Parallel()

	cfg := session.DefaultConfig()
	cfg.AccessTokenTTL = time.Second
	env := newTestEnv(t, cfg)
	env.signupAndLogin(t, "rotate@example.com", "a-long-enough-password")

	req, _ := http.NewRequest(http.MethodGet, env.server.URL, nil)
	oldAccess := jarCookie(env.client.Jar.Cookies(req.URL), "access_token")
	oldSession := jarCookie(env.client.Jar.Cookies(req.URL), "session_id")

	// Let the access token lapse; the refresh token stays valid.
	time.Sleep(1200 * time.Millisecond)

	resp := env.get(t, "/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/me after access expiry = %d, want 200 (silent refresh)", resp.StatusCode)
	}

	newAccess := jarCookie(env.client.Jar.Cookies(req.URL), "access_token")
	newSession := jarCookie(env.client.Jar.Cookies(req.URL), "session_id")
	if newAccess == "" || newAccess == oldAccess {
		t.Fatalf("access token not rotated")
	}
	if newSession != oldSession {
		t.Fatalf("session id changed on rotation: %q -> %q", oldSession, newSession)
	}

	// The rotated credentials keep working.
	resp = env.get(t, "/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/me with rotated pair = %d, want 200", resp.StatusCode)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())
	env.signupAndLogin(t, "bye@example.com", "a-long-enough-password")

	resp := env.postJSON(t, "/accounts/logout", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200", resp.StatusCode)
	}

	resp = env.get(t, "/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/me after logout = %d, want 401", resp.StatusCode)
	}

	// Logging out twice is fine.
	resp = env.postJSON(t, "/accounts/logout", struct{}{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second logout status = %d, want 200", resp.StatusCode)
	}
}

func TestChangePasswordInvalidatesSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())
	env.signupAndLogin(t, "chg@example.com", "a-long-enough-password")

	// Wrong current password is refused.
	resp := env.postJSON(t, "/accounts/password", changePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "my-brand-new-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("change with wrong current = %d, want 400", resp.StatusCode)
	}

	resp = env.postJSON(t, "/accounts/password", changePasswordRequest{
		CurrentPassword: "a-long-enough-password",
		NewPassword:     "my-brand-new-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password = %d, want 200", resp.StatusCode)
	}

	// The session died with the old password.
	resp = env.get(t, "/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/me after password change = %d, want 401", resp.StatusCode)
	}

	// Old password no longer works; the new one does.
	resp = env.postJSON(t, "/accounts/login", loginRequest{
		EmailAddress: "chg@example.com",
		Password:     "a-long-enough-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login with old password = %d, want 401", resp.StatusCode)
	}

	resp = env.postJSON(t, "/accounts/login", loginRequest{
		EmailAddress: "chg@example.com",
		Password:     "my-brand-new-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with new password = %d, want 200", resp.StatusCode)
	}
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, session.DefaultConfig())
	env.signupAndLogin(t, "gone@example.com", "a-long-enough-password")

	resp := env.get(t, "/me")
	me := decodeMe(t, resp)

	env.users.deactivate(me.User.ID)

	resp = env.get(t, "/me")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/me for deactivated user = %d, want 401", resp.StatusCode)
	}

	resp = env.postJSON(t, "/accounts/login", loginRequest{
		EmailAddress: "gone@example.com",
		Password:     "a-long-enough-password",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login for deactivated user = %d, want 401", resp.StatusCode)
	}
}

func jarCookie(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}
