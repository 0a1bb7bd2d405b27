package user

import (
	"net/http"

	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/pkg/validators"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type registerBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

func UserRegister(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")

	var data registerBody
	if !bind(c, &data) {
		return
	}

	if err := validators.EmailValidator(data.Email); err != nil {
		zap.L().Debug("Invalid email", zap.Error(err), zap.String("requestID", requestID))
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := validators.PasswordValidator(data.Password); err != nil {
		zap.L().Debug("Invalid password", zap.Error(err), zap.String("requestID", requestID))
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	role, ok := model.ParseRole(data.Role)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid role")
		return
	}

	r := d.Accounts.CreateAccount(c.Request.Context(), data.Email, data.Password, role)
	if !r.OK {
		respondKind(c, r.Error)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":   true,
		"user": r.Data,
	})
}
