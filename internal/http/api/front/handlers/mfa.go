package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

// MFAHandler handles TOTP enrollment endpoints.
type MFAHandler struct {
	db *gorm.DB
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db}
}

// secretEntry stores a pending TOTP secret with expiry.
type secretEntry struct {
	secret  string
	expires time.Time
}

// secretStore keeps pending TOTP secrets in memory until confirmation.
type secretStore struct {
	mu    sync.Mutex
	items map[string]secretEntry
}

func newSecretStore() *secretStore {
	return &secretStore{items: make(map[string]secretEntry)}
}

// Set stores a secret with expiry.
func (s *secretStore) Set(key, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = secretEntry{secret: secret, expires: time.Now().Add(10 * time.Minute)}
}

// Get returns a secret if present and not expired.
func (s *secretStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.items, key)
		return "", false
	}
	return entry.secret, true
}

// Delete removes a secret entry.
func (s *secretStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// pendingTOTPSecrets holds secrets between prepare and confirm.
var pendingTOTPSecrets = newSecretStore()

// Status reports whether TOTP is enabled for the current user.
func (h *MFAHandler) Status(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": strings.TrimSpace(user.TOTPSecret) != ""})
}

// PrepareTOTP generates a new TOTP secret pending confirmation.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if strings.TrimSpace(user.TOTPSecret) != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}

	key, errGenerate := totp.Generate(totp.GenerateOpts{
		Issuer:      settings.DBConfigString(settings.SiteNameKey, settings.DefaultSiteName),
		AccountName: user.Email,
	})
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}

	pendingTOTPSecrets.Set(secretStoreKey(user.ID), key.Secret())
	c.JSON(http.StatusOK, gin.H{
		"secret": key.Secret(),
		"url":    key.URL(),
	})
}

// confirmTOTPRequest defines the request body for TOTP confirmation.
type confirmTOTPRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP validates the first code and persists the pending secret.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	secret, okSecret := pendingTOTPSecrets.Get(secretStoreKey(user.ID))
	if !okSecret {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no pending totp secret"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).Updates(map[string]any{
		"totp_secret": secret,
		"updated_at":  time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	pendingTOTPSecrets.Delete(secretStoreKey(user.ID))

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP verifies a current code and removes the secret.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if strings.TrimSpace(user.TOTPSecret) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}

	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).Updates(map[string]any{
		"totp_secret": "",
		"updated_at":  time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// currentUser loads the authenticated user or writes the error response.
func (h *MFAHandler) currentUser(c *gin.Context) (models.User, bool) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.User{}, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		}
		return models.User{}, false
	}
	return user, true
}

func secretStoreKey(userID uint64) string {
	return fmt.Sprintf("user:%d", userID)
}
