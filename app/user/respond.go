// Package user contains the account endpoints
package user

import (
	"errors"
	"net/http"

	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"
)

var kindStatus = map[service.ErrorKind]int{
	service.DuplicateEmail:       http.StatusConflict,
	service.UserNotFound:         http.StatusNotFound,
	service.VerificationNotFound: http.StatusNotFound,
	service.WrongPassword:        http.StatusUnauthorized,
	service.InvalidSignature:     http.StatusUnauthorized,
	service.Malformed:            http.StatusUnauthorized,
}

// StatusOf returns the HTTP status used to report kind.
func StatusOf(kind service.ErrorKind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}

	return http.StatusInternalServerError
}

func respondKind(c *gin.Context, kind service.ErrorKind) {
	respondError(c, StatusOf(kind), kind.Message())
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{
		"ok":        false,
		"error":     msg,
		"requestID": c.GetString("requestID"),
	})
}

// bind decodes the JSON body into dst and answers the request itself when
// that fails.
func bind(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	if middleware.IsBodyTooLarge(err) {
		respondError(c, http.StatusRequestEntityTooLarge, "Request body size exceeds limit")
		return false
	}

	zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", c.GetString("requestID")))
	respondError(c, http.StatusBadRequest, "Invalid request body")
	return false
}

// ProfilePath is the path a user's cached profile is stored under.
func ProfilePath(id string) string {
	return "/api/users/" + id
}

// dropProfile evicts the cached public profile of id after it changed.
func dropProfile(c *gin.Context, d *internal.Deps, id string) {
	if d.Cache == nil {
		return
	}

	// The memory store reports profiles that were never cached
	err := d.Cache.Delete(ProfilePath(id))
	if err != nil && !errors.Is(err, ttlcache.ErrNotFound) {
		zap.L().Warn("Failed to drop cached profile",
			zap.Error(err),
			zap.String("userID", id),
			zap.String("requestID", c.GetString("requestID")),
		)
	}
}
