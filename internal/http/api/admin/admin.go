package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cfphub/cfpserver/internal/config"
	"github.com/cfphub/cfpserver/internal/http/api/admin/handlers"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/proposals"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers the privileged program-committee routes.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, jwtCfg config.JWTConfig) {
	if r == nil || db == nil {
		return
	}

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	callsHandler := handlers.NewCallsHandler(db)
	authed.GET("/calls", callsHandler.List)
	authed.POST("/calls", callsHandler.Create)
	authed.PUT("/calls/:id", callsHandler.Update)
	authed.POST("/calls/:id/open", callsHandler.Open)
	authed.POST("/calls/:id/close", callsHandler.Close)
	authed.POST("/calls/:id/archive", callsHandler.Archive)

	proposalsHandler := handlers.NewProposalsAdminHandler(db, proposals.NewStore(db))
	authed.GET("/proposals", proposalsHandler.List)
	authed.POST("/proposals/:id/select", proposalsHandler.Select)
	authed.POST("/proposals/:id/unselect", proposalsHandler.Unselect)

	settingsHandler := handlers.NewSettingsHandler(db)
	authed.GET("/settings", settingsHandler.List)
	authed.PUT("/settings", settingsHandler.Update)
}

// adminAuthMiddleware validates admin JWTs and loads the admin into context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, strings.TrimSpace(token))
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
