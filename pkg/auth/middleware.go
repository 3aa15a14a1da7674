package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bosun/pkg/ctxkeys"
)

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// ServiceAuthMiddleware guards internal endpoints with a shared bearer token.
func ServiceAuthMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}
		if err := ValidateServiceToken(token, expectedToken); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(string(ctxkeys.KeyAuthType), "service")
		c.Next()
	}
}

// JWTAuthMiddleware accepts workspace JWTs. When serviceToken is non-empty a
// service caller may instead act on the workspace named by X-Workspace-ID.
func JWTAuthMiddleware(secret []byte, serviceToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}

		if claims, err := ValidateJWT(token, secret); err == nil {
			setIdentity(c, claims.WorkspaceID, claims.UserID, claims.Role, "jwt")
			c.Next()
			return
		}

		if serviceToken != "" && ValidateServiceToken(token, serviceToken) == nil {
			workspaceID := strings.TrimSpace(c.GetHeader("X-Workspace-ID"))
			if workspaceID == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Workspace-ID header required"})
				return
			}
			setIdentity(c, workspaceID, "service", "service", "service")
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT token"})
	}
}

func setIdentity(c *gin.Context, workspaceID, userID, role, authType string) {
	c.Set(string(ctxkeys.KeyWorkspaceID), workspaceID)
	c.Set(string(ctxkeys.KeyUserID), userID)
	c.Set(string(ctxkeys.KeyRole), role)
	c.Set(string(ctxkeys.KeyAuthType), authType)
	c.Request = c.Request.WithContext(ctxkeys.WithWorkspace(c.Request.Context(), workspaceID, userID))
}
