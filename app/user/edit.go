package user

import (
	"net/http"

	"bitwise74/eats-api/internal"
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/pkg/middleware"
	"bitwise74/eats-api/pkg/validators"

	"github.com/gin-gonic/gin"
)

type editBody struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func UserEdit(c *gin.Context, d *internal.Deps) {
	u, _ := middleware.CurrentUser(c)

	var data editBody
	if !bind(c, &data) {
		return
	}

	if data.Email != nil && *data.Email != "" {
		if err := validators.EmailValidator(*data.Email); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	if data.Password != nil && *data.Password != "" {
		if err := validators.PasswordValidator(*data.Password); err != nil {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	r := d.Accounts.EditProfile(c.Request.Context(), u.ID, service.EditProfileInput{
		Email:    data.Email,
		Password: data.Password,
	})
	if !r.OK {
		respondKind(c, r.Error)
		return
	}

	dropProfile(c, d, u.ID)

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"user": r.Data,
	})
}
