package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/proposals"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ProposalsHandler handles proposal submission, review and scoring.
type ProposalsHandler struct {
	db    *gorm.DB
	store *proposals.Store
}

// NewProposalsHandler constructs a ProposalsHandler.
func NewProposalsHandler(db *gorm.DB, store *proposals.Store) *ProposalsHandler {
	return &ProposalsHandler{db: db, store: store}
}

// createProposalRequest defines the request body for proposal creation.
type createProposalRequest struct {
	CallID                     uint64 `json:"call_id"`
	Title                      string `json:"title"`
	PublicDescription          string `json:"public_description"`
	TimeSlot                   string `json:"time_slot"`
	MentorsCanRead             bool   `json:"mentors_can_read"`
	TermsAndConditionsAccepted bool   `json:"terms_and_conditions_accepted"`
}

// Create submits a new proposal for the current user.
func (h *ProposalsHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createProposalRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var call models.Call
	if errFind := h.db.WithContext(c.Request.Context()).First(&call, body.CallID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []proposals.ValidationError{{Field: "call", Reason: proposals.ReasonRequired}}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if !call.Open {
		c.JSON(http.StatusForbidden, gin.H{"error": "call is closed"})
		return
	}

	record, errCreate := h.store.Create(c.Request.Context(), proposals.CreateParams{
		CallID:                     call.ID,
		UserID:                     userID,
		Title:                      body.Title,
		PublicDescription:          body.PublicDescription,
		TimeSlot:                   body.TimeSlot,
		MentorsCanRead:             body.MentorsCanRead,
		TermsAndConditionsAccepted: body.TermsAndConditionsAccepted,
	})
	if errCreate != nil {
		var verrs proposals.ValidationErrors
		if errors.As(errCreate, &verrs) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verrs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create proposal failed"})
		return
	}
	record.Call = &call

	c.JSON(http.StatusCreated, h.render(c, record))
}

// updateProposalRequest defines the request body for proposal updates.
// Terms acceptance is not part of updates.
type updateProposalRequest struct {
	Title             *string `json:"title"`
	PublicDescription *string `json:"public_description"`
	TimeSlot          *string `json:"time_slot"`
	MentorsCanRead    *bool   `json:"mentors_can_read"`
}

// Update edits one of the current user's proposals while its call is open.
func (h *ProposalsHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	record, errGet := h.store.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, proposals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if record.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	var body updateProposalRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updated, errUpdate := h.store.Update(c.Request.Context(), record.ID, proposals.UpdateParams{
		Title:             body.Title,
		PublicDescription: body.PublicDescription,
		TimeSlot:          body.TimeSlot,
		MentorsCanRead:    body.MentorsCanRead,
	})
	if errUpdate != nil {
		var verrs proposals.ValidationErrors
		switch {
		case errors.As(errUpdate, &verrs):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verrs})
		case errors.Is(errUpdate, proposals.ErrNotEditable):
			c.JSON(http.StatusForbidden, gin.H{"error": "call is closed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update proposal failed"})
		}
		return
	}

	c.JSON(http.StatusOK, h.render(c, updated))
}

// Get returns one proposal with its derived views for the current user.
func (h *ProposalsHandler) Get(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	record, errGet := h.store.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, proposals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := h.render(c, record)

	ratedBy, errRated := h.store.RatedBy(c.Request.Context(), record.ID, userID)
	if errRated == nil {
		out["rated_by_me"] = ratedBy
	}
	noteBy, errNote := h.store.NoteAttachedBy(c.Request.Context(), record.ID, userID)
	if errNote == nil {
		out["note_attached_by_me"] = noteBy
	}
	if dimension := strings.TrimSpace(c.Query("dimension")); dimension != "" {
		score, okScore, errScore := h.store.ScoreByDimension(c.Request.Context(), record.ID, dimension)
		if errScore == nil {
			out["dimension_score"] = renderScore(score, okScore)
		}
	}

	c.JSON(http.StatusOK, out)
}

// List returns visible proposals filtered by query parameters:
// mine, selected, mentors, open, not_rated, others, search.
func (h *ProposalsHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn := h.db.WithContext(c.Request.Context())
	query := conn.Model(&models.Proposal{}).Preload("Call").Scopes(proposals.Visible)

	if c.Query("mine") == "true" {
		query = query.Where("proposals.user_id = ?", userID)
	}
	if c.Query("others") == "true" {
		query = query.Scopes(proposals.NotFrom(userID))
	}
	if c.Query("selected") == "true" {
		query = query.Scopes(proposals.Selected)
	}
	if c.Query("mentors") == "true" {
		query = query.Scopes(proposals.MentorsCanRead)
	}
	if c.Query("not_rated") == "true" {
		query = query.Scopes(proposals.NotRatedByUser(userID))
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Scopes(proposals.TitleMatches(h.db, search))
	}

	var records []models.Proposal
	if errFind := query.Order("proposals.created_at DESC").Find(&records).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(records))
	for i := range records {
		out = append(out, h.render(c, &records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

// rateRequest defines the request body for rating a proposal; votes are
// keyed by dimension.
type rateRequest struct {
	Votes map[string]int `json:"votes"`
}

// Rate records the current user's rating relation for a proposal.
func (h *ProposalsHandler) Rate(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	record, errGet := h.store.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, proposals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if record.UserID == userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot rate own proposal"})
		return
	}

	var body rateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Votes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing votes"})
		return
	}

	if _, errRate := h.store.Rate(c.Request.Context(), record.ID, userID, body.Votes); errRate != nil {
		if errors.Is(errRate, proposals.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "already rated"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rate failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// noteRequest defines the request body for attaching a note.
type noteRequest struct {
	Body string `json:"body"`
}

// AttachNote records the current user's note on a proposal.
func (h *ProposalsHandler) AttachNote(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	record, errGet := h.store.Get(c.Request.Context(), c.Param("id"))
	if errGet != nil {
		if errors.Is(errGet, proposals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var body noteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if _, errNote := h.store.AttachNote(c.Request.Context(), record.ID, userID, body.Body); errNote != nil {
		var verrs proposals.ValidationErrors
		switch {
		case errors.As(errNote, &verrs):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verrs})
		case errors.Is(errNote, proposals.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "note already attached"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attach note failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// render shapes a proposal response with its derived score and flags.
func (h *ProposalsHandler) render(c *gin.Context, record *models.Proposal) gin.H {
	out := gin.H{
		"id":                 record.ID,
		"call_id":            record.CallID,
		"user_id":            record.UserID,
		"title":              record.Title,
		"public_description": record.PublicDescription,
		"time_slot":          record.TimeSlot,
		"mentors_can_read":   record.MentorsCanRead,
		"selected":           record.Selected,
		"editable":           h.store.Editable(record),
		"updated":            record.Updated(),
		"created_at":         record.CreatedAt,
		"updated_at":         record.UpdatedAt,
	}
	score, okScore, errScore := h.store.Score(c.Request.Context(), record.ID)
	if errScore == nil {
		out["score"] = renderScore(score, okScore)
	}
	return out
}

// renderScore maps the no-raters case to null rather than NaN.
func renderScore(score float64, ok bool) any {
	if !ok {
		return nil
	}
	return score
}
