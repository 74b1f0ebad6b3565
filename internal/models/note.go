package models

import "time"

// Note is a reviewer annotation on a proposal, at most one per reviewer.
type Note struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex:idx_notes_user_proposal"` // Annotating user ID.
	User   *User  `gorm:"foreignKey:UserID"`                            // Annotating user.

	ProposalID string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_notes_user_proposal"` // Annotated proposal ID.
	Proposal   *Proposal `gorm:"foreignKey:ProposalID"`                                         // Annotated proposal.

	Body string `gorm:"type:text;not null"` // Note text.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
