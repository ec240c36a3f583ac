package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bipstech/exam-portal/internal/response"
	"github.com/bipstech/exam-portal/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// TokenValidator parses signed tokens. *service.AuthService implements it.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireCandidateJWT validates a candidate JWT from the Authorization header.
func RequireCandidateJWT(v TokenValidator) gin.HandlerFunc {
	return requireToken(v, service.TokenTypeCandidate, false)
}

// RequireAdminJWT validates an admin JWT from the Authorization header.
// The ?token= query is accepted as well because EventSource cannot send headers.
func RequireAdminJWT(v TokenValidator) gin.HandlerFunc {
	return requireToken(v, service.TokenTypeAdmin, true)
}

// RequireCandidateWSAuth validates a candidate JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireCandidateWSAuth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		claims, err := v.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, tokenErrCode(err))
			return
		}
		if claims.TokenType != service.TokenTypeCandidate {
			response.AbortFail(c, http.StatusForbidden, response.ErrCandidateAccessOnly)
			return
		}
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func requireToken(v TokenValidator, want service.TokenType, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" && allowQuery {
			tokenStr = c.Query("token")
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := v.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, tokenErrCode(err))
			return
		}

		if claims.TokenType != want {
			code := response.ErrAdminAccessOnly
			if want == service.TokenTypeCandidate {
				code = response.ErrCandidateAccessOnly
			}
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func tokenErrCode(err error) response.ErrCode {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return response.ErrTokenExpired
	}
	return response.ErrTokenInvalid
}
