package handlers

import (
	"net/http"

	"github.com/cfphub/cfpserver/internal/settings"
	"github.com/gin-gonic/gin"
)

// GetPublicConfig returns unauthenticated site configuration.
func GetPublicConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site_name":            settings.DBConfigString(settings.SiteNameKey, settings.DefaultSiteName),
		"registration_enabled": settings.DBConfigBool(settings.RegistrationEnabledKey, settings.DefaultRegistrationEnabled),
		"announcement":         settings.DBConfigString(settings.AnnouncementKey, ""),
	})
}
