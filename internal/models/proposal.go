package models

import "time"

// Proposal is a submission against a call. Its primary key is a random
// 32-character hex token assigned at creation, not a sequential ID.
type Proposal struct {
	ID string `gorm:"type:varchar(32);primaryKey"` // Random hex identifier.

	CallID uint64 `gorm:"not null;index"`    // Owning call ID.
	Call   *Call  `gorm:"foreignKey:CallID"` // Owning call.

	UserID uint64 `gorm:"not null;index"`    // Submitting user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Submitting user.

	Title             string `gorm:"type:text;not null"` // Talk title.
	PublicDescription string `gorm:"type:text;not null"` // Abstract shown to attendees.
	TimeSlot          string `gorm:"type:text;not null"` // Requested slot length, e.g. "30min".

	MentorsCanRead bool `gorm:"not null;default:false"` // Visible to mentors.
	Selected       bool `gorm:"not null;default:false"` // Picked for the program.

	UserProposalRatings []UserProposalRating `gorm:"foreignKey:ProposalID"` // Per-reviewer rating relations.
	Notes               []Note               `gorm:"foreignKey:ProposalID"` // Reviewer annotations.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Updated reports whether the proposal was modified after creation.
func (p *Proposal) Updated() bool {
	return !p.CreatedAt.Equal(p.UpdatedAt)
}
