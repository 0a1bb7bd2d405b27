package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bitwise74/eats-api/app/user"
	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/internal/testutil"
	"bitwise74/eats-api/pkg/security"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mailbox struct {
	mu    sync.Mutex
	codes map[string][]string
}

func (m *mailbox) NotifyVerification(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.codes == nil {
		m.codes = map[string][]string{}
	}
	m.codes[email] = append(m.codes[email], code)

	return nil
}

// latest waits until email received n codes and returns the last one.
func (m *mailbox) latest(t *testing.T, email string, n int) string {
	t.Helper()

	var code string
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()

		if len(m.codes[email]) < n {
			return false
		}

		code = m.codes[email][len(m.codes[email])-1]
		return true
	}, time.Second, 5*time.Millisecond)

	return code
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	mail   *mailbox
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	mail := &mailbox{}
	d := internal.NewDeps(
		testutil.NewDB(t),
		testutil.Argon(),
		security.NewTokenService([]byte("test-secret"), 0),
		mail,
		persist.NewMemoryStore(time.Minute),
	)

	return &testAPI{
		t:    t,
		mail: mail,
		router: New(d, Options{
			JWTHeader: "x-jwt",
			BodyLimit: 1 << 10,
			CacheTTL:  time.Minute,
			Origins:   []string{"http://localhost:3000"},
		}),
	}
}

type response struct {
	OK        bool            `json:"ok"`
	Error     string          `json:"error"`
	RequestID string          `json:"requestID"`
	Token     string          `json:"token"`
	User      json.RawMessage `json:"user"`
}

type userView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     int    `json:"role"`
	Verified bool   `json:"verified"`
}

func (a *testAPI) do(method, path, token string, body any) (int, response) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("x-jwt", token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var r response
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	}

	return w.Code, r
}

func (r response) user(t *testing.T) userView {
	t.Helper()

	var u userView
	require.NoError(t, json.Unmarshal(r.User, &u))
	return u
}

func TestHeartbeat(t *testing.T) {
	a := newTestAPI(t)

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/api/heartbeat", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAccountFlow(t *testing.T) {
	a := newTestAPI(t)
	creds := gin.H{"email": "a@x.com", "password": "pw"}

	code, r := a.do(http.MethodPost, "/api/users", "", gin.H{"email": "a@x.com", "password": "pw", "role": "owner"})
	require.Equal(t, http.StatusCreated, code, r.Error)
	created := r.user(t)
	assert.Equal(t, "a@x.com", created.Email)
	assert.Equal(t, 1, created.Role)
	assert.False(t, created.Verified)
	assert.NotContains(t, string(r.User), "password")

	code, r = a.do(http.MethodPost, "/api/users", "", creds)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.DuplicateEmail.Message(), r.Error)
	assert.NotEmpty(t, r.RequestID)

	code, r = a.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "a@x.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, service.WrongPassword.Message(), r.Error)

	code, _ = a.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "b@x.com", "password": "pw"})
	assert.Equal(t, http.StatusNotFound, code)

	code, r = a.do(http.MethodPost, "/api/users/login", "", creds)
	require.Equal(t, http.StatusOK, code)
	token := r.Token
	require.NotEmpty(t, token)

	code, _ = a.do(http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/users/me", "garbage", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, r = a.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, r.user(t).ID)

	// Cache the unverified profile
	code, r = a.do(http.MethodGet, user.ProfilePath(created.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, r.user(t).Verified)

	verification := a.mail.latest(t, "a@x.com", 1)

	code, r = a.do(http.MethodPost, "/api/users/verify", "", gin.H{"code": verification})
	require.Equal(t, http.StatusOK, code, r.Error)
	assert.Equal(t, created.ID, r.user(t).ID)
	assert.True(t, r.user(t).Verified)

	code, r = a.do(http.MethodPost, "/api/users/verify", "", gin.H{"code": verification})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, service.VerificationNotFound.Message(), r.Error)

	// Verifying dropped the cached profile
	code, r = a.do(http.MethodGet, user.ProfilePath(created.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, r.user(t).Verified)

	code, r = a.do(http.MethodPatch, "/api/users/me", token, gin.H{"email": "new@x.com"})
	require.Equal(t, http.StatusOK, code, r.Error)
	assert.Equal(t, "new@x.com", r.user(t).Email)
	assert.False(t, r.user(t).Verified)

	// The cached profile is dropped on edit
	code, r = a.do(http.MethodGet, user.ProfilePath(created.ID), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "new@x.com", r.user(t).Email)

	fresh := a.mail.latest(t, "new@x.com", 1)
	code, _ = a.do(http.MethodPost, "/api/users/verify", "", gin.H{"code": fresh})
	assert.Equal(t, http.StatusOK, code)

	// Tokens stay valid across an email change
	code, r = a.do(http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, r.user(t).Verified)

	code, _ = a.do(http.MethodPatch, "/api/users/me", token, gin.H{"password": "pw2"})
	require.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "new@x.com", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "new@x.com", "password": "pw2"})
	assert.Equal(t, http.StatusOK, code)
}

func TestEditProfile_DuplicateEmail(t *testing.T) {
	a := newTestAPI(t)

	for _, email := range []string{"a@x.com", "b@x.com"} {
		code, _ := a.do(http.MethodPost, "/api/users", "", gin.H{"email": email, "password": "pw"})
		require.Equal(t, http.StatusCreated, code)
	}

	_, r := a.do(http.MethodPost, "/api/users/login", "", gin.H{"email": "a@x.com", "password": "pw"})
	require.NotEmpty(t, r.Token)

	code, r := a.do(http.MethodPatch, "/api/users/me", r.Token, gin.H{"email": "B@x.com"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, service.DuplicateEmail.Message(), r.Error)
}

func TestFetchUnknownUser(t *testing.T) {
	a := newTestAPI(t)

	code, r := a.do(http.MethodGet, user.ProfilePath("nobody"), "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, r.OK)
}

func TestBadRequests(t *testing.T) {
	a := newTestAPI(t)

	tests := map[string]struct {
		method string
		path   string
		body   any
		status int
	}{
		"missing password": {http.MethodPost, "/api/users", gin.H{"email": "a@x.com"}, http.StatusBadRequest},
		"invalid email":    {http.MethodPost, "/api/users", gin.H{"email": "nope", "password": "pw"}, http.StatusBadRequest},
		"invalid role":     {http.MethodPost, "/api/users", gin.H{"email": "a@x.com", "password": "pw", "role": "admin"}, http.StatusBadRequest},
		"long password":    {http.MethodPost, "/api/users", gin.H{"email": "a@x.com", "password": strings.Repeat("p", 256)}, http.StatusBadRequest},
		"huge body":        {http.MethodPost, "/api/users", gin.H{"email": "a@x.com", "password": strings.Repeat("p", 2048)}, http.StatusRequestEntityTooLarge},
		"login no email":   {http.MethodPost, "/api/users/login", gin.H{"password": "pw"}, http.StatusBadRequest},
		"verify no code":   {http.MethodPost, "/api/users/verify", gin.H{}, http.StatusBadRequest},
		"unknown code":     {http.MethodPost, "/api/users/verify", gin.H{"code": "nope"}, http.StatusNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, r := a.do(tc.method, tc.path, "", tc.body)
			assert.Equal(t, tc.status, code)
			assert.False(t, r.OK)
			assert.NotEmpty(t, r.Error)
		})
	}
}

// slowMail takes a while to deliver each code.
type slowMail struct {
	delay time.Duration
	sent  atomic.Int32
}

func (s *slowMail) NotifyVerification(ctx context.Context, _, _ string) error {
	select {
	case <-time.After(s.delay):
		s.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestShutdown_WaitsForVerificationMails(t *testing.T) {
	mail := &slowMail{delay: 100 * time.Millisecond}
	d := internal.NewDeps(
		testutil.NewDB(t),
		testutil.Argon(),
		security.NewTokenService([]byte("test-secret"), 0),
		mail,
		persist.NewMemoryStore(time.Minute),
	)

	a := &API{Router: New(d, Options{JWTHeader: "x-jwt", BodyLimit: 1 << 10, CacheTTL: time.Minute}), Deps: d}
	a.server = newServer("127.0.0.1:0", a.Router)
	t.Cleanup(a.Close)

	errc := make(chan error, 1)
	go func() { errc <- a.Run() }()

	r := d.Accounts.CreateAccount(context.Background(), "a@x.com", "pw", model.RoleClient)
	require.True(t, r.OK, r.Error)
	assert.EqualValues(t, 0, mail.sent.Load())

	require.NoError(t, a.Shutdown(context.Background()))
	assert.EqualValues(t, 1, mail.sent.Load())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestShutdown_GivesUpAtDeadline(t *testing.T) {
	mail := &slowMail{delay: 5 * time.Second}
	d := internal.NewDeps(
		testutil.NewDB(t),
		testutil.Argon(),
		security.NewTokenService([]byte("test-secret"), 0),
		mail,
		persist.NewMemoryStore(time.Minute),
	)

	a := &API{Router: New(d, Options{JWTHeader: "x-jwt", BodyLimit: 1 << 10, CacheTTL: time.Minute}), Deps: d}
	a.server = newServer("127.0.0.1:0", a.Router)
	t.Cleanup(a.Close)

	require.True(t, d.Accounts.CreateAccount(context.Background(), "a@x.com", "pw", model.RoleClient).OK)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, a.Shutdown(ctx), context.DeadlineExceeded)
	assert.EqualValues(t, 0, mail.sent.Load())
}

func TestOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins([]string{"http://a.test, http://b.test"}))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins([]string{"http://a.test", "http://b.test"}))
	assert.Empty(t, origins(nil))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, user.StatusOf(service.DuplicateEmail))
	assert.Equal(t, http.StatusNotFound, user.StatusOf(service.UserNotFound))
	assert.Equal(t, http.StatusUnauthorized, user.StatusOf(service.WrongPassword))
	assert.Equal(t, http.StatusInternalServerError, user.StatusOf(service.CreateAccountFailed))
}
