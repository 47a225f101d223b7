package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ritaorion/district5b-portal/internal/usecase"
)

const claimsKey = "claims"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{Error: errorMsg, TraceID: GetTraceID(c)}
}

// AccessTokenParser verifies bearer tokens.
type AccessTokenParser interface {
	ParseAccessToken(ctx context.Context, token string) (*usecase.Claims, error)
}

// RequireStaff validates the Authorization header and stores the staff claims.
func RequireStaff(parser AccessTokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "missing authorization header"))
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		claims, err := parser.ParseAccessToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid access token"))
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set(claimsKey, claims)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.AccountID = claims.AccountID
		}

		c.Next()
	}
}

// RequireAdmin allows only staff whose token carries the admin flag. It must run
// after RequireStaff.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "authentication required"))
			return
		}
		if !claims.Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "insufficient permissions"))
			return
		}
		c.Next()
	}
}

// GetClaims returns the claims stored by RequireStaff, or nil.
func GetClaims(c *gin.Context) *usecase.Claims {
	if val, ok := c.Get(claimsKey); ok {
		if claims, ok := val.(*usecase.Claims); ok {
			return claims
		}
	}
	return nil
}
