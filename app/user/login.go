package user

import (
	"net/http"

	"bitwise74/eats-api/internal"

	"github.com/gin-gonic/gin"
)

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func UserLogin(c *gin.Context, d *internal.Deps) {
	var data loginBody
	if !bind(c, &data) {
		return
	}

	r := d.Accounts.Login(c.Request.Context(), data.Email, data.Password)
	if !r.OK {
		respondKind(c, r.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"token": r.Data,
	})
}
