// Package api registers the HTTP JSON routes and auth middleware.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ideaspark/ideaspark/internal/config"
	"github.com/ideaspark/ideaspark/internal/gemini"
	"github.com/ideaspark/ideaspark/internal/http/api/handlers"
	"github.com/ideaspark/ideaspark/internal/quota"
	"github.com/ideaspark/ideaspark/internal/ratelimit"
	"github.com/ideaspark/ideaspark/internal/security"
	internalsettings "github.com/ideaspark/ideaspark/internal/settings"
	"gorm.io/gorm"
)

// RegisterRoutes registers all API routes, middleware, and handlers.
func RegisterRoutes(
	r *gin.Engine,
	db *gorm.DB,
	jwtCfg config.JWTConfig,
	tracker *quota.Tracker,
	generator gemini.Generator,
	limiter *ratelimit.Manager,
	settings *internalsettings.Store,
) {
	if r == nil || db == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	authGroup := r.Group("/api/auth")
	authGroup.POST("/signup", authHandler.SignUp)
	authGroup.POST("/signin", authHandler.SignIn)
	authGroup.POST("/signout", authHandler.SignOut)
	authGroup.GET("/google", authHandler.GoogleStub)
	authGroup.GET("/google/callback", authHandler.GoogleStub)

	userHandler := handlers.NewUserHandler(db)
	r.GET("/api/user", userAuthMiddleware(jwtCfg), userHandler.Current)

	generateHandler := handlers.NewGenerateHandler(jwtCfg, tracker, generator, limiter, settings)
	r.POST("/api/generate-content", generateHandler.Generate)
}

// userAuthMiddleware validates user JWTs and loads the caller identity.
// A missing token yields 401; a supplied but invalid token yields 403.
func userAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseUserToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userEmail", claims.Email)
		c.Next()
	}
}
