package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/internal/store"
	"bitwise74/eats-api/internal/testutil"
	"bitwise74/eats-api/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seen struct {
	calls   int
	user    *model.User
	ctxUser *model.User
	userID  string
}

// identityRouter echoes what the identity middleware attached to the request.
func identityRouter(tokens TokenVerifier, users UserFinder) (*gin.Engine, *seen) {
	s := &seen{}

	r := gin.New()
	r.Use(NewIdentityMiddleware(tokens, users, "x-jwt"))
	r.GET("/", func(c *gin.Context) {
		s.calls++
		s.user, _ = CurrentUser(c)
		s.ctxUser, _ = UserFromContext(c.Request.Context())
		s.userID = c.GetString("userID")
		c.Status(http.StatusNoContent)
	})

	return r, s
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("x-jwt", token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

type failingFinder struct{}

func (failingFinder) FindByID(context.Context, string) (*model.User, error) {
	return nil, errors.Join(store.ErrPersistence, errors.New("connection reset"))
}

func TestIdentityMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	users := store.NewUsers(db, testutil.Argon())
	tokens := security.NewTokenService([]byte("secret"), 0)

	u, err := users.Create(context.Background(), "a@x.com", "pw", model.RoleClient)
	require.NoError(t, err)

	valid, err := tokens.Sign(u.ID)
	require.NoError(t, err)

	ghost, err := tokens.Sign("nobody")
	require.NoError(t, err)

	foreign, err := security.NewTokenService([]byte("other"), 0).Sign(u.ID)
	require.NoError(t, err)

	t.Run("resolves a valid token", func(t *testing.T) {
		r, s := identityRouter(tokens, users)
		w := do(r, valid)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, 1, s.calls)
		require.NotNil(t, s.user)
		assert.Equal(t, u.ID, s.user.ID)
		assert.Equal(t, "a@x.com", s.user.Email)
		assert.Empty(t, s.user.PasswordHash)
		assert.Equal(t, s.user, s.ctxUser)
		assert.Equal(t, u.ID, s.userID)
	})

	anonymous := map[string]struct {
		token string
		users UserFinder
	}{
		"no header":         {"", users},
		"garbage":           {"not-a-token", users},
		"foreign signature": {foreign, users},
		"unknown subject":   {ghost, users},
		"store failure":     {valid, failingFinder{}},
	}

	for name, tc := range anonymous {
		t.Run(name, func(t *testing.T) {
			r, s := identityRouter(tokens, tc.users)
			w := do(r, tc.token)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, 1, s.calls)
			assert.Nil(t, s.user)
			assert.Nil(t, s.ctxUser)
			assert.Empty(t, s.userID)
		})
	}
}

func TestRequireUser(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("x-user") != "" {
			c.Set("user", &model.User{ID: c.GetHeader("x-user")})
		}
		c.Next()
	})
	r.GET("/", RequireUser(), func(c *gin.Context) {
		u, _ := CurrentUser(c)
		c.String(http.StatusOK, u.ID)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-user", "u1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())
}

func TestUserFromContext_Empty(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserFromContext(WithUser(context.Background(), nil))
	assert.False(t, ok)
}

func TestRequestIDMiddleware(t *testing.T) {
	var id string

	r := gin.New()
	r.Use(NewRequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		id = c.GetString("requestID")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, id, 16)
	assert.Equal(t, id, w.Header().Get("X-Request-ID"))
}

func TestBodySizeLimiter(t *testing.T) {
	var readErr error

	r := gin.New()
	r.Use(BodySizeLimiter(8))
	r.POST("/", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, readErr)

	// Unknown length is only caught while reading
	req := httptest.NewRequest(http.MethodPost, "/", io.NopCloser(strings.NewReader("0123456789")))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.True(t, IsBodyTooLarge(readErr))
}
