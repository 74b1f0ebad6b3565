package front

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cfphub/cfpserver/internal/config"
	"github.com/cfphub/cfpserver/internal/http/api/front/handlers"
	"github.com/cfphub/cfpserver/internal/identity"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/proposals"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterFrontRoutes registers public and authenticated front-end routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig, providers *identity.Registry, identitySvc *identity.Service, stash identity.Stash) {
	if r == nil || db == nil {
		return
	}

	frontGroup := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(db, jwtCfg, identitySvc)
	frontGroup.POST("/register", authHandler.Register)
	frontGroup.GET("/register/prefill", authHandler.Prefill)
	frontGroup.POST("/login", authHandler.Login)
	frontGroup.POST("/reset-password", authHandler.ResetPassword)
	frontGroup.GET("/config", handlers.GetPublicConfig)

	fedHandler := handlers.NewAuthenticationsHandler(db, jwtCfg, providers, identitySvc, stash)
	frontGroup.GET("/auth/:provider", fedHandler.Begin)
	frontGroup.GET("/auth/:provider/callback", fedHandler.Callback)

	authed := frontGroup.Group("")
	authed.Use(userAuthMiddleware(db, jwtCfg))

	authed.GET("/authentications", fedHandler.List)
	authed.DELETE("/authentications/:id", fedHandler.Unlink)

	profileHandler := handlers.NewProfileHandler(db)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	proposalsHandler := handlers.NewProposalsHandler(db, proposals.NewStore(db))
	authed.GET("/proposals", proposalsHandler.List)
	authed.POST("/proposals", proposalsHandler.Create)
	authed.GET("/proposals/:id", proposalsHandler.Get)
	authed.PUT("/proposals/:id", proposalsHandler.Update)
	authed.POST("/proposals/:id/ratings", proposalsHandler.Rate)
	authed.POST("/proposals/:id/notes", proposalsHandler.AttachNote)
}

// userAuthMiddleware validates user JWTs and loads the user into context.
func userAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var user models.User
		if errFind := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if !user.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		c.Set("userID", user.ID)
		c.Next()
	}
}
