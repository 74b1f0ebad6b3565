package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cfphub/cfpserver/internal/config"
	"github.com/cfphub/cfpserver/internal/identity"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/cfphub/cfpserver/internal/util"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// statePrefix namespaces OAuth state tokens inside the stash.
const statePrefix = "state:"

// AuthenticationsHandler handles federated sign-in and link management.
type AuthenticationsHandler struct {
	db        *gorm.DB
	jwtCfg    config.JWTConfig
	providers *identity.Registry
	identity  *identity.Service
	stash     identity.Stash
}

// NewAuthenticationsHandler constructs an AuthenticationsHandler.
func NewAuthenticationsHandler(db *gorm.DB, jwtCfg config.JWTConfig, providers *identity.Registry, identitySvc *identity.Service, stash identity.Stash) *AuthenticationsHandler {
	return &AuthenticationsHandler{db: db, jwtCfg: jwtCfg, providers: providers, identity: identitySvc, stash: stash}
}

// Begin starts the authorization-code handshake with a provider, returning
// the redirect URL and storing the CSRF state.
func (h *AuthenticationsHandler) Begin(c *gin.Context) {
	provider, ok := h.providers.Get(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	state, errState := security.GenerateStateToken()
	if errState != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate state failed"})
		return
	}
	if errPut := h.stash.Put(c.Request.Context(), statePrefix+state, identity.Assertion{Provider: provider.Name()}); errPut != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store state failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":   provider.AuthURL(state),
		"state": state,
	})
}

// Callback completes the handshake and reconciles the resulting assertion
// against the user and link stores.
func (h *AuthenticationsHandler) Callback(c *gin.Context) {
	provider, ok := h.providers.Get(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	state := strings.TrimSpace(c.Query("state"))
	code := strings.TrimSpace(c.Query("code"))
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or state"})
		return
	}

	stored, okState, errState := h.stash.Get(c.Request.Context(), statePrefix+state)
	if errState != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state lookup failed"})
		return
	}
	if !okState || stored.Provider != provider.Name() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	_ = h.stash.Delete(c.Request.Context(), statePrefix+state)

	assertion, errExchange := provider.Exchange(c.Request.Context(), code)
	if errExchange != nil {
		log.WithError(errExchange).WithField("provider", provider.Name()).
			Warnf("federated exchange failed for code %s", util.HideToken(code))
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider exchange failed"})
		return
	}

	outcome, errReconcile := h.identity.Reconcile(c.Request.Context(), assertion, h.optionalUserID(c))
	if errReconcile != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}

	switch outcome.Status {
	case identity.StatusSignedIn, identity.StatusRegistered:
		respondWithUserToken(c, h.jwtCfg, *outcome.User, outcome.Message)
	case identity.StatusLinked:
		c.JSON(http.StatusOK, gin.H{"message": outcome.Message})
	case identity.StatusNeedsRegistration:
		c.JSON(http.StatusAccepted, gin.H{
			"message":   outcome.Message,
			"stash_key": outcome.StashKey,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unexpected outcome"})
	}
}

// optionalUserID resolves the current user from the Authorization header
// when present. The callback route is public; a valid session upgrades the
// reconciliation into a link operation.
func (h *AuthenticationsHandler) optionalUserID(c *gin.Context) uint64 {
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader || strings.TrimSpace(token) == "" {
		return 0
	}
	claims, errJWT := security.ParseToken(h.jwtCfg.Secret, strings.TrimSpace(token))
	if errJWT != nil {
		return 0
	}
	return claims.UserID
}

// List returns the current user's authentication links.
func (h *AuthenticationsHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	links, errList := h.identity.Links(c.Request.Context(), userID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	out := make([]gin.H, 0, len(links))
	for _, link := range links {
		out = append(out, gin.H{
			"id":         link.ID,
			"provider":   link.Provider,
			"uid":        link.UID,
			"created_at": link.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"authentications": out})
}

// Unlink removes one of the current user's authentication links.
func (h *AuthenticationsHandler) Unlink(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	linkID, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if errUnlink := h.identity.Unlink(c.Request.Context(), userID, linkID); errUnlink != nil {
		if errors.Is(errUnlink, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unlink failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "destroyed"})
}
