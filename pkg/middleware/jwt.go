package middleware

import (
	"context"
	"net/http"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenVerifier interface {
	Verify(token string) (*security.Claims, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type userCtxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userCtxKey{}).(*model.User)
	return u, ok && u != nil
}

// CurrentUser returns the identity attached to the request, if any.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}

	u, ok := v.(*model.User)
	return u, ok && u != nil
}

// NewIdentityMiddleware resolves the token found in header to a user and
// attaches it to the request. Requests without a usable token continue
// anonymously, this middleware never rejects anything.
func NewIdentityMiddleware(tokens TokenVerifier, users UserFinder, header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u := resolve(c, tokens, users, header); u != nil {
			c.Set("user", u)
			c.Set("userID", u.ID)
			c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		}

		c.Next()
	}
}

func resolve(c *gin.Context, tokens TokenVerifier, users UserFinder, header string) *model.User {
	raw := c.GetHeader(header)
	if raw == "" {
		return nil
	}

	requestID := c.GetString("requestID")

	claims, err := tokens.Verify(raw)
	if err != nil {
		zap.L().Debug("Rejected session token",
			zap.Error(err),
			zap.String("kind", string(service.KindOf(err))),
			zap.String("requestID", requestID),
		)
		return nil
	}

	u, err := users.FindByID(c.Request.Context(), claims.UserID)
	if err != nil {
		kind := service.KindOf(err)
		if kind == service.UserNotFound {
			zap.L().Debug("Token subject no longer exists", zap.String("userID", claims.UserID), zap.String("requestID", requestID))
		} else {
			zap.L().Error("Failed to resolve token subject",
				zap.Error(err),
				zap.String("kind", string(kind)),
				zap.String("userID", claims.UserID),
				zap.String("requestID", requestID),
			)
		}

		return nil
	}

	return u
}

// RequireUser aborts requests that carry no identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"ok":        false,
				"error":     "Log in to access this resource",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}
