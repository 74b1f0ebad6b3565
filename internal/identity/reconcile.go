package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Reconciliation errors.
var (
	// ErrNotFound indicates a link that does not exist or is not owned by
	// the caller. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("authentication not found")
)

// Status classifies the outcome of a reconciliation.
type Status string

// Reconciliation outcomes.
const (
	// StatusSignedIn means an existing link matched and its owner signed in.
	StatusSignedIn Status = "signed_in"
	// StatusLinked means the assertion was linked to the current user.
	StatusLinked Status = "linked"
	// StatusRegistered means a new user was created and signed in.
	StatusRegistered Status = "registered"
	// StatusNeedsRegistration means the visitor must complete registration
	// manually, pre-filled from the stashed assertion.
	StatusNeedsRegistration Status = "needs_registration"
)

// Outcome is the result of reconciling a federated identity assertion.
type Outcome struct {
	Status   Status       // Decision taken.
	User     *models.User // Set for sign-in and registration outcomes.
	Message  string       // Human-readable notice for the caller.
	StashKey string       // Set when Status is StatusNeedsRegistration.
}

// Service decides what to do with incoming federated identity assertions.
type Service struct {
	db    *gorm.DB
	stash Stash
}

// NewService constructs a reconciliation service.
func NewService(db *gorm.DB, stash Stash) *Service {
	return &Service{db: db, stash: stash}
}

// Reconcile applies the ordered reconciliation policy, first match wins:
//
//  1. A link for (provider, uid) exists: its owner signs in.
//  2. A user is already authenticated: link the assertion to that user,
//     idempotently.
//  3. Otherwise register a new user from the mapped profile; when the
//     profile cannot satisfy user validation, stash the assertion and defer
//     to the manual registration flow.
//
// currentUserID is zero when no session is active. Session establishment
// itself is the caller's job; Reconcile only reports who to sign in.
func (s *Service) Reconcile(ctx context.Context, assertion Assertion, currentUserID uint64) (Outcome, error) {
	provider := strings.TrimSpace(assertion.Provider)
	uid := strings.TrimSpace(assertion.UID)
	if provider == "" || uid == "" {
		return Outcome{}, fmt.Errorf("identity: assertion missing provider or uid")
	}

	var link models.Authentication
	errFind := s.db.WithContext(ctx).
		Where("provider = ? AND uid = ?", provider, uid).
		First(&link).Error
	switch {
	case errFind == nil:
		var owner models.User
		if errOwner := s.db.WithContext(ctx).First(&owner, link.UserID).Error; errOwner != nil {
			return Outcome{}, fmt.Errorf("identity: load link owner: %w", errOwner)
		}
		return Outcome{Status: StatusSignedIn, User: &owner, Message: "signed in"}, nil
	case !errors.Is(errFind, gorm.ErrRecordNotFound):
		return Outcome{}, fmt.Errorf("identity: find link: %w", errFind)
	}

	if currentUserID != 0 {
		if errLink := s.findOrCreateLink(ctx, currentUserID, provider, uid, assertion.Profile); errLink != nil {
			return Outcome{}, errLink
		}
		return Outcome{Status: StatusLinked, Message: "authentication linked"}, nil
	}

	user, errRegister := s.registerFromAssertion(ctx, assertion, provider, uid)
	if errRegister == nil {
		return Outcome{Status: StatusRegistered, User: user, Message: "signed in"}, nil
	}
	if !isRegistrationFailure(errRegister) {
		return Outcome{}, errRegister
	}

	key, errKey := security.GenerateStateToken()
	if errKey != nil {
		return Outcome{}, fmt.Errorf("identity: stash key: %w", errKey)
	}
	if errStash := s.stash.Put(ctx, key, assertion); errStash != nil {
		return Outcome{}, fmt.Errorf("identity: stash assertion: %w", errStash)
	}
	log.WithFields(log.Fields{"provider": provider}).Info("federated registration deferred to manual flow")
	return Outcome{
		Status:   StatusNeedsRegistration,
		Message:  "needs additional registration input",
		StashKey: key,
	}, nil
}

// findOrCreateLink attaches (provider, uid) to the given user. A concurrent
// create racing on the unique (provider, uid) index is resolved by
// re-fetching the winner scoped to the same user.
func (s *Service) findOrCreateLink(ctx context.Context, userID uint64, provider, uid string, profile map[string]string) error {
	var existing models.Authentication
	errFind := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ? AND uid = ?", userID, provider, uid).
		First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("identity: find link: %w", errFind)
	}

	link := models.Authentication{
		UserID:   userID,
		Provider: provider,
		UID:      uid,
		Profile:  encodeProfile(profile),
	}
	errCreate := s.db.WithContext(ctx).Create(&link).Error
	if errCreate == nil {
		return nil
	}
	if isDuplicateKey(errCreate) {
		errRefetch := s.db.WithContext(ctx).
			Where("user_id = ? AND provider = ? AND uid = ?", userID, provider, uid).
			First(&existing).Error
		if errRefetch == nil {
			return nil
		}
		return fmt.Errorf("identity: link owned by another user: %w", errCreate)
	}
	return fmt.Errorf("identity: create link: %w", errCreate)
}

// registerFromAssertion builds a user from the mapped profile and persists
// user and link together; on any failure nothing is persisted.
func (s *Service) registerFromAssertion(ctx context.Context, assertion Assertion, provider, uid string) (*models.User, error) {
	user := models.User{
		Email:  strings.TrimSpace(assertion.Email()),
		Name:   strings.TrimSpace(assertion.Name()),
		Active: true,
	}
	if user.Email == "" || user.Name == "" {
		return nil, errValidation
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return errCreate
		}
		link := models.Authentication{
			UserID:   user.ID,
			Provider: provider,
			UID:      uid,
			Profile:  encodeProfile(assertion.Profile),
		}
		return tx.Create(&link).Error
	})
	if errTx != nil {
		if isDuplicateKey(errTx) {
			// Likely an account with the same email registered manually;
			// defer to the manual flow instead of guessing a merge.
			return nil, errValidation
		}
		return nil, fmt.Errorf("identity: register user: %w", errTx)
	}
	return &user, nil
}

// Unlink removes one of the current user's own links. A link id owned by a
// different user reports ErrNotFound, never a permission error, so callers
// cannot probe for the existence of other users' links.
func (s *Service) Unlink(ctx context.Context, currentUserID uint64, linkID uint64) error {
	var link models.Authentication
	errFind := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", linkID, currentUserID).
		First(&link).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("identity: find link: %w", errFind)
	}
	if errDelete := s.db.WithContext(ctx).Delete(&link).Error; errDelete != nil {
		return fmt.Errorf("identity: delete link: %w", errDelete)
	}
	return nil
}

// Links returns all of a user's authentication links.
func (s *Service) Links(ctx context.Context, userID uint64) ([]models.Authentication, error) {
	var links []models.Authentication
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&links).Error; errFind != nil {
		return nil, fmt.Errorf("identity: list links: %w", errFind)
	}
	return links, nil
}

// Pending returns a stashed assertion for pre-filling manual registration.
func (s *Service) Pending(ctx context.Context, key string) (Assertion, bool, error) {
	return s.stash.Get(ctx, key)
}

// CompleteRegistration consumes a stashed assertion after the manual flow
// created the user, linking the federated identity to the new account.
func (s *Service) CompleteRegistration(ctx context.Context, key string, userID uint64) error {
	assertion, ok, errGet := s.stash.Get(ctx, key)
	if errGet != nil {
		return errGet
	}
	if !ok {
		return ErrNotFound
	}
	if errLink := s.findOrCreateLink(ctx, userID, assertion.Provider, assertion.UID, assertion.Profile); errLink != nil {
		return errLink
	}
	return s.stash.Delete(ctx, key)
}

// errValidation marks registration failures that should fall through to the
// pending-registration stash rather than abort the request.
var errValidation = errors.New("identity: profile fails user validation")

func isRegistrationFailure(err error) bool {
	return errors.Is(err, errValidation)
}

// isDuplicateKey reports whether an error is a uniqueness violation, across
// the sqlite and postgres drivers.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}

func encodeProfile(profile map[string]string) datatypes.JSON {
	if len(profile) == 0 {
		return nil
	}
	payload, errEncode := json.Marshal(profile)
	if errEncode != nil {
		return nil
	}
	return datatypes.JSON(payload)
}
