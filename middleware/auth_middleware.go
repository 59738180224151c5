package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clientpulse/api/utils"
)

const (
	ctxUserID   = "user_id"
	ctxClientID = "scope_client_id"
)

// TokenValidator is satisfied by *utils.TokenManager.
type TokenValidator interface {
	ValidateJWT(tokenString string) (*utils.Claims, error)
}

// AuthRequired accepts either the static X-API-KEY (when one is configured) or a JWT from the
// jwt_token cookie or the Authorization header.
func AuthRequired(validator TokenValidator, apiKey string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-KEY"); apiKey != "" && key != "" &&
			subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			c.Next()
			return
		}

		tokenString, err := c.Cookie("jwt_token")
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			if tokenString == "" {
				logger.Debug("No JWT token found in cookie or header", zap.String("path", c.FullPath()))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
		}

		claims, err := validator.ValidateJWT(tokenString)
		if err != nil {
			logger.Info("Invalid JWT token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set(ctxUserID, claims.UserID)
		if claims.ClientID != "" {
			c.Set(ctxClientID, claims.ClientID)
		}
		c.Next()
	}
}

// ClientScope rejects requests for a :clientId other than the one the token is scoped to.
// Requests authenticated with the API key or an unscoped token pass.
func ClientScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scoped := c.GetString(ctxClientID)
		if scoped != "" && scoped != c.Param("clientId") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: token is not valid for this client"})
			return
		}
		c.Next()
	}
}
