package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
)

// RequireRole checks that the JWT carries one of the given roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, deniedCode(roles))
	}
}

// RequireStudent admits student tokens only.
func RequireStudent() gin.HandlerFunc {
	return RequireRole(model.RoleStudent)
}

// RequireStaff admits teachers and admins.
func RequireStaff() gin.HandlerFunc {
	return RequireRole(model.RoleTeacher, model.RoleAdmin)
}

func deniedCode(roles []model.Role) response.ErrCode {
	if len(roles) == 1 && roles[0] == model.RoleStudent {
		return response.ErrStudentAccessOnly
	}
	for _, r := range roles {
		if r == model.RoleStudent {
			return response.ErrForbidden
		}
	}
	return response.ErrTeacherAccessOnly
}
