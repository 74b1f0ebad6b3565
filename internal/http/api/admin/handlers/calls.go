package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CallsHandler manages call lifecycle endpoints.
type CallsHandler struct {
	db *gorm.DB
}

// NewCallsHandler constructs a CallsHandler.
func NewCallsHandler(db *gorm.DB) *CallsHandler {
	return &CallsHandler{db: db}
}

// List returns all calls, newest first.
func (h *CallsHandler) List(c *gin.Context) {
	var calls []models.Call
	if errFind := h.db.WithContext(c.Request.Context()).Order("id DESC").Find(&calls).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(calls))
	for _, call := range calls {
		out = append(out, renderCall(call))
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

// callRequest defines the request body for call creation and updates.
type callRequest struct {
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

// Create creates a new call, closed by default.
func (h *CallsHandler) Create(c *gin.Context) {
	var body callRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
		return
	}

	call := models.Call{
		Title:    title,
		StartsAt: body.StartsAt,
		EndsAt:   body.EndsAt,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&call).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create call failed"})
		return
	}
	c.JSON(http.StatusCreated, renderCall(call))
}

// Update edits a call's descriptive fields.
func (h *CallsHandler) Update(c *gin.Context) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}

	var body callRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if title := strings.TrimSpace(body.Title); title != "" {
		call.Title = title
	}
	if body.StartsAt != nil {
		call.StartsAt = body.StartsAt
	}
	if body.EndsAt != nil {
		call.EndsAt = body.EndsAt
	}

	if errSave := h.db.WithContext(c.Request.Context()).Save(&call).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update call failed"})
		return
	}
	c.JSON(http.StatusOK, renderCall(call))
}

// Open marks a call as accepting and allowing edits of proposals.
func (h *CallsHandler) Open(c *gin.Context) {
	h.setFlags(c, true, false)
}

// Close stops proposal edits for a call.
func (h *CallsHandler) Close(c *gin.Context) {
	h.setFlags(c, false, false)
}

// Archive hides a call and its proposals; an archived call is also closed.
func (h *CallsHandler) Archive(c *gin.Context) {
	h.setFlags(c, false, true)
}

func (h *CallsHandler) setFlags(c *gin.Context, open, archived bool) {
	call, ok := h.loadCall(c)
	if !ok {
		return
	}
	call.Open = open
	// Archiving is one-way from this surface.
	if archived {
		call.Archived = true
	}
	if errSave := h.db.WithContext(c.Request.Context()).Save(&call).Error; errSave != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update call failed"})
		return
	}
	c.JSON(http.StatusOK, renderCall(call))
}

func (h *CallsHandler) loadCall(c *gin.Context) (models.Call, bool) {
	callID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return models.Call{}, false
	}
	var call models.Call
	if errFind := h.db.WithContext(c.Request.Context()).First(&call, callID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return models.Call{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return models.Call{}, false
	}
	return call, true
}

func renderCall(call models.Call) gin.H {
	return gin.H{
		"id":         call.ID,
		"title":      call.Title,
		"open":       call.Open,
		"archived":   call.Archived,
		"starts_at":  call.StartsAt,
		"ends_at":    call.EndsAt,
		"created_at": call.CreatedAt,
		"updated_at": call.UpdatedAt,
	}
}
