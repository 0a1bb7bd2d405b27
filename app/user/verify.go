package user

import (
	"net/http"

	"bitwise74/eats-api/internal"

	"github.com/gin-gonic/gin"
)

type verifyBody struct {
	Code string `json:"code" binding:"required"`
}

func UserVerify(c *gin.Context, d *internal.Deps) {
	var data verifyBody
	if !bind(c, &data) {
		return
	}

	r := d.Accounts.VerifyEmail(c.Request.Context(), data.Code)
	if !r.OK {
		respondKind(c, r.Error)
		return
	}

	dropProfile(c, d, r.Data.ID)

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"message": "Email verified successfully",
		"user":    r.Data,
	})
}
