package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/proposals"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProposalsAdminHandler exposes the committee's view of proposals,
// including selection, which bypasses the call-open editability rule.
type ProposalsAdminHandler struct {
	db    *gorm.DB
	store *proposals.Store
}

// NewProposalsAdminHandler constructs a ProposalsAdminHandler.
func NewProposalsAdminHandler(db *gorm.DB, store *proposals.Store) *ProposalsAdminHandler {
	return &ProposalsAdminHandler{db: db, store: store}
}

// List returns proposals with scores, optionally restricted to one call or
// to selected proposals only. Archived calls are included here.
func (h *ProposalsAdminHandler) List(c *gin.Context) {
	conn := h.db.WithContext(c.Request.Context())
	query := conn.Model(&models.Proposal{}).Preload("Call").Preload("User")

	if callParam := c.Query("call_id"); callParam != "" {
		callID, errParse := strconv.ParseUint(callParam, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call_id"})
			return
		}
		query = query.Where("proposals.call_id = ?", callID)
	}
	if c.Query("selected") == "true" {
		query = query.Scopes(proposals.Selected)
	}

	var records []models.Proposal
	if errFind := query.Order("proposals.created_at DESC").Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(records))
	for i := range records {
		record := &records[i]
		item := gin.H{
			"id":         record.ID,
			"call_id":    record.CallID,
			"title":      record.Title,
			"time_slot":  record.TimeSlot,
			"selected":   record.Selected,
			"updated":    record.Updated(),
			"created_at": record.CreatedAt,
		}
		if record.User != nil {
			item["user_email"] = record.User.Email
			item["user_name"] = record.User.Name
		}
		score, okScore, errScore := h.store.Score(c.Request.Context(), record.ID)
		if errScore == nil {
			if okScore {
				item["score"] = score
			} else {
				item["score"] = nil
			}
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

// Select marks a proposal as picked for the program.
func (h *ProposalsAdminHandler) Select(c *gin.Context) {
	h.setSelected(c, true)
}

// Unselect removes a proposal from the program.
func (h *ProposalsAdminHandler) Unselect(c *gin.Context) {
	h.setSelected(c, false)
}

func (h *ProposalsAdminHandler) setSelected(c *gin.Context, selected bool) {
	var record models.Proposal
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", c.Param("id")).First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&record).Updates(map[string]any{
		"selected":   selected,
		"updated_at": time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update proposal failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": record.ID, "selected": selected})
}
