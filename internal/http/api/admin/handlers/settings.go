package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/settings"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsHandler manages DB-backed site settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns all stored settings.
func (h *SettingsHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	c.JSON(http.StatusOK, gin.H{"settings": out})
}

// Update upserts setting values and refreshes the in-memory snapshot.
func (h *SettingsHandler) Update(c *gin.Context) {
	var body map[string]json.RawMessage
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty settings"})
		return
	}

	now := time.Now().UTC()
	for key, value := range body {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		row := models.Setting{Key: key, Value: value, UpdatedAt: now}
		if errUpsert := h.db.WithContext(c.Request.Context()).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).
			Create(&row).Error; errUpsert != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save setting failed"})
			return
		}
	}

	if errRefresh := settings.RefreshDBConfigSnapshot(c.Request.Context(), h.db); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
