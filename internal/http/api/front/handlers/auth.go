package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cfphub/cfpserver/internal/config"
	"github.com/cfphub/cfpserver/internal/identity"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/cfphub/cfpserver/internal/settings"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

// AuthHandler handles registration and login endpoints.
type AuthHandler struct {
	db       *gorm.DB
	jwtCfg   config.JWTConfig
	identity *identity.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, identitySvc *identity.Service) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, identity: identitySvc}
}

// registerRequest defines the request body for user registration. StashKey
// links the registration back to a deferred federated sign-in.
type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	StashKey string `json:"stash_key"`
}

// Register creates a new user account, completing a deferred federated
// sign-in when a stash key is supplied.
func (h *AuthHandler) Register(c *gin.Context) {
	if !settings.DBConfigBool(settings.RegistrationEnabledKey, settings.DefaultRegistrationEnabled) {
		c.JSON(http.StatusForbidden, gin.H{"error": "registration disabled"})
		return
	}

	var body registerRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.TrimSpace(body.Email)
	name := strings.TrimSpace(body.Name)
	password := strings.TrimSpace(body.Password)
	if email == "" || name == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email, name or password"})
		return
	}

	var exists models.User
	if errCheck := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&exists).Error; errCheck == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := models.User{
		Email:    email,
		Name:     name,
		Password: hash,
		Active:   true,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&user).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	if stashKey := strings.TrimSpace(body.StashKey); stashKey != "" {
		if errLink := h.identity.CompleteRegistration(c.Request.Context(), stashKey, user.ID); errLink != nil && !errors.Is(errLink, identity.ErrNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "link authentication failed"})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// Prefill returns the stashed assertion attributes for a deferred
// federated registration.
func (h *AuthHandler) Prefill(c *gin.Context) {
	key := strings.TrimSpace(c.Query("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	assertion, ok, errGet := h.identity.Pending(c.Request.Context(), key)
	if errGet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stash lookup failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider": assertion.Provider,
		"email":    assertion.Email(),
		"name":     assertion.Name(),
	})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// Login authenticates a user with email and password, requiring a TOTP
// code when MFA is enabled on the account.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.TrimSpace(body.Email)
	password := strings.TrimSpace(body.Password)
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email or password"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}
	if user.Password == "" || !security.CheckPassword(user.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if strings.TrimSpace(user.TOTPSecret) != "" {
		code := strings.TrimSpace(body.Code)
		if code == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "totp code required"})
			return
		}
		if !totp.Validate(code, user.TOTPSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
			return
		}
	}

	respondWithUserToken(c, h.jwtCfg, user, "signed in")
}

// respondWithUserToken issues a session JWT for the given user.
func respondWithUserToken(c *gin.Context, jwtCfg config.JWTConfig, user models.User, message string) {
	token, errToken := security.GenerateToken(jwtCfg.Secret, user.ID, user.Name, user.Email, jwtCfg.Expiry())
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"token":   token,
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// resetPasswordRequest defines the request body for password resets.
type resetPasswordRequest struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	NewPassword string `json:"new_password"`
}

// ResetPassword updates a user's password after verification.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	email := strings.TrimSpace(body.Email)
	name := strings.TrimSpace(body.Name)
	newPassword := strings.TrimSpace(body.NewPassword)
	if email == "" || name == "" || newPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ? AND name = ?", email, name).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&user).Updates(map[string]any{
		"password":   hash,
		"updated_at": time.Now().UTC(),
	}).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset password failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
