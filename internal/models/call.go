package models

import "time"

// Call is a time-boxed proposal-collection event.
type Call struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title string `gorm:"type:text;not null"` // Display title.

	Open     bool `gorm:"not null;default:false"` // Whether proposals can still be edited.
	Archived bool `gorm:"not null;default:false"` // Hides the call and its proposals.

	StartsAt *time.Time // Optional submission window start.
	EndsAt   *time.Time // Optional submission window end.

	Proposals []Proposal `gorm:"foreignKey:CallID"` // Submitted proposals.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
