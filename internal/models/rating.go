package models

import "time"

// UserProposalRating links one reviewer to one proposal. A reviewer holds
// at most one relation per proposal; the per-dimension votes hang off it.
type UserProposalRating struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_ratings_user_proposal"` // Rating user ID.
	User   *User  `gorm:"foreignKey:UserID"`                              // Rating user.

	ProposalID string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_ratings_user_proposal"` // Rated proposal ID.
	Proposal   *Proposal `gorm:"foreignKey:ProposalID"`                                           // Rated proposal.

	Ratings []Rating `gorm:"foreignKey:UserProposalRatingID"` // Per-dimension votes.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Rating is a single vote along one dimension.
type Rating struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserProposalRatingID uint64 `gorm:"not null;index"` // Owning rating relation ID.

	Vote      int    `gorm:"not null"`           // Numeric vote value.
	Dimension string `gorm:"type:text;not null"` // Rated axis, e.g. "clarity".

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
