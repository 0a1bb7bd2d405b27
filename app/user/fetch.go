package user

import (
	"net/http"

	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// UserMe returns the user the request is authenticated as.
func UserMe(c *gin.Context) {
	u, _ := middleware.CurrentUser(c)

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": u,
	})
}

// UserFetch returns the public profile of the user in the :id path param.
func UserFetch(c *gin.Context, d *internal.Deps) {
	r := d.Accounts.FindByID(c.Request.Context(), c.Param("id"))
	if !r.OK {
		respondKind(c, r.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": r.Data,
	})
}
