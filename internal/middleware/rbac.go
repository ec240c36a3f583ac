package middleware

import (
	"net/http"

	"github.com/bipstech/exam-portal/internal/response"
	"github.com/gin-gonic/gin"
)

// RequireRole checks that the admin JWT carries one of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
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

		response.AbortFail(c, http.StatusForbidden, response.ErrForbidden)
	}
}
