package proposals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/security"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store errors.
var (
	// ErrNotFound indicates the proposal does not exist.
	ErrNotFound = errors.New("proposal not found")
	// ErrNotEditable indicates the owning call is no longer open.
	ErrNotEditable = errors.New("proposal not editable")
	// ErrConflict indicates a uniqueness violation, e.g. a second rating
	// relation for the same (user, proposal) pair.
	ErrConflict = errors.New("already exists")
)

// Store persists proposals and computes their derived read views.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a proposal store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for scope composition.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateParams holds caller-supplied fields for proposal creation. The
// identifier is never caller-supplied.
type CreateParams struct {
	CallID                     uint64
	UserID                     uint64
	Title                      string
	PublicDescription          string
	TimeSlot                   string
	MentorsCanRead             bool
	TermsAndConditionsAccepted bool
}

// Create validates and persists a new proposal. The random identifier is
// generated immediately before the presence rules run, so the id rule can
// only fail if the random source does.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Proposal, error) {
	id, errID := security.GenerateProposalID()
	if errID != nil {
		return nil, fmt.Errorf("proposals: %w", errID)
	}

	record := models.Proposal{
		ID:                id,
		CallID:            params.CallID,
		UserID:            params.UserID,
		Title:             strings.TrimSpace(params.Title),
		PublicDescription: strings.TrimSpace(params.PublicDescription),
		TimeSlot:          strings.TrimSpace(params.TimeSlot),
		MentorsCanRead:    params.MentorsCanRead,
	}
	if errs := validate(&record, true, params.TermsAndConditionsAccepted); len(errs) > 0 {
		return nil, errs
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return nil, fmt.Errorf("proposals: create: %w", errCreate)
	}
	return &record, nil
}

// UpdateParams holds caller-supplied fields for proposal updates. Nil
// pointers leave the stored value untouched.
type UpdateParams struct {
	Title             *string
	PublicDescription *string
	TimeSlot          *string
	MentorsCanRead    *bool
}

// Update applies standard field updates to a proposal while its call is
// open. Terms acceptance is not re-checked here.
func (s *Store) Update(ctx context.Context, id string, params UpdateParams) (*models.Proposal, error) {
	record, errGet := s.Get(ctx, id)
	if errGet != nil {
		return nil, errGet
	}
	if !s.Editable(record) {
		return nil, ErrNotEditable
	}

	if params.Title != nil {
		record.Title = strings.TrimSpace(*params.Title)
	}
	if params.PublicDescription != nil {
		record.PublicDescription = strings.TrimSpace(*params.PublicDescription)
	}
	if params.TimeSlot != nil {
		record.TimeSlot = strings.TrimSpace(*params.TimeSlot)
	}
	if params.MentorsCanRead != nil {
		record.MentorsCanRead = *params.MentorsCanRead
	}

	if errs := validate(record, false, false); len(errs) > 0 {
		return nil, errs
	}
	if errSave := s.db.WithContext(ctx).Omit(clause.Associations).Save(record).Error; errSave != nil {
		return nil, fmt.Errorf("proposals: update: %w", errSave)
	}
	return record, nil
}

// Get loads a proposal with its call.
func (s *Store) Get(ctx context.Context, id string) (*models.Proposal, error) {
	var record models.Proposal
	errFind := s.db.WithContext(ctx).
		Preload("Call").
		Where("id = ?", id).
		First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("proposals: get: %w", errFind)
	}
	return &record, nil
}

// Editable reports whether the proposal's call is open. The proposal's own
// stored flags never affect editability.
func (s *Store) Editable(p *models.Proposal) bool {
	return p != nil && p.Call != nil && p.Call.Open
}

// RatedBy reports whether exactly one rating relation exists for the
// (proposal, user) pair.
func (s *Store) RatedBy(ctx context.Context, proposalID string, userID uint64) (bool, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.UserProposalRating{}).
		Where("proposal_id = ? AND user_id = ?", proposalID, userID).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("proposals: rated by: %w", errCount)
	}
	return count == 1, nil
}

// NoteAttachedBy reports whether exactly one note exists for the
// (proposal, user) pair.
func (s *Store) NoteAttachedBy(ctx context.Context, proposalID string, userID uint64) (bool, error) {
	var count int64
	errCount := s.db.WithContext(ctx).
		Model(&models.Note{}).
		Where("proposal_id = ? AND user_id = ?", proposalID, userID).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("proposals: note attached by: %w", errCount)
	}
	return count == 1, nil
}

// Score returns the sum of all votes reachable through the proposal's
// rating relations divided by the number of raters. A relation contributing
// several dimension votes still counts as one rater in the denominator.
// ok is false when the proposal has no raters.
func (s *Store) Score(ctx context.Context, proposalID string) (float64, bool, error) {
	return s.score(ctx, proposalID, "")
}

// ScoreByDimension is Score with the numerator filtered to one dimension.
func (s *Store) ScoreByDimension(ctx context.Context, proposalID, dimension string) (float64, bool, error) {
	return s.score(ctx, proposalID, dimension)
}

func (s *Store) score(ctx context.Context, proposalID, dimension string) (float64, bool, error) {
	var raters int64
	errCount := s.db.WithContext(ctx).
		Model(&models.UserProposalRating{}).
		Where("proposal_id = ?", proposalID).
		Count(&raters).Error
	if errCount != nil {
		return 0, false, fmt.Errorf("proposals: count raters: %w", errCount)
	}
	if raters == 0 {
		return 0, false, nil
	}

	query := s.db.WithContext(ctx).
		Model(&models.Rating{}).
		Joins("JOIN user_proposal_ratings ON user_proposal_ratings.id = ratings.user_proposal_rating_id").
		Where("user_proposal_ratings.proposal_id = ?", proposalID)
	if dimension != "" {
		query = query.Where("ratings.dimension = ?", dimension)
	}

	var sum float64
	if errSum := query.Select("COALESCE(SUM(ratings.vote), 0)").Scan(&sum).Error; errSum != nil {
		return 0, false, fmt.Errorf("proposals: sum votes: %w", errSum)
	}
	return sum / float64(raters), true, nil
}

// Rate records a rating relation with one or more dimension votes for a
// (user, proposal) pair. A second relation for the same pair is a conflict.
func (s *Store) Rate(ctx context.Context, proposalID string, userID uint64, votes map[string]int) (*models.UserProposalRating, error) {
	if len(votes) == 0 {
		return nil, fmt.Errorf("proposals: rate: no votes")
	}
	relation := models.UserProposalRating{
		UserID:     userID,
		ProposalID: proposalID,
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&relation).Error; errCreate != nil {
			return errCreate
		}
		for dimension, vote := range votes {
			rating := models.Rating{
				UserProposalRatingID: relation.ID,
				Vote:                 vote,
				Dimension:            dimension,
			}
			if errCreate := tx.Create(&rating).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		if isUniqueViolation(errTx) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("proposals: rate: %w", errTx)
	}
	return &relation, nil
}

// AttachNote records a reviewer note for a (user, proposal) pair. A second
// note for the same pair is a conflict.
func (s *Store) AttachNote(ctx context.Context, proposalID string, userID uint64, body string) (*models.Note, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ValidationErrors{{Field: "body", Reason: ReasonRequired}}
	}
	note := models.Note{
		UserID:     userID,
		ProposalID: proposalID,
		Body:       strings.TrimSpace(body),
	}
	if errCreate := s.db.WithContext(ctx).Create(&note).Error; errCreate != nil {
		if isUniqueViolation(errCreate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("proposals: attach note: %w", errCreate)
	}
	return &note, nil
}

// isUniqueViolation reports whether an error is a uniqueness violation,
// across the sqlite and postgres drivers.
func isUniqueViolation(err error) bool {
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
