package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/gin-gonic/gin"
)

// SessionChecker confirms a candidate token is still the active attempt.
type SessionChecker interface {
	ValidateCandidateSession(ctx context.Context, claims *service.Claims) error
}

// CheckCandidateSession validates the JWT's JTI against the active attempt in Redis.
// If the JTI doesn't match, the request is rejected (the candidate left or was reset).
func CheckCandidateSession(checker SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if claims.TokenType != service.TokenTypeCandidate {
			c.Next()
			return
		}

		if err := checker.ValidateCandidateSession(c.Request.Context(), claims); err != nil {
			if errors.Is(err, service.ErrSessionInvalidated) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
				return
			}
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable)
			return
		}

		c.Next()
	}
}
