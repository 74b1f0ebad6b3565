package models

import (
	"time"

	"gorm.io/datatypes"
)

// Authentication binds one federated identity to a local user.
// The (provider, uid) pair is unique across all links.
type Authentication struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user.

	Provider string `gorm:"type:text;not null;uniqueIndex:idx_authentications_provider_uid"` // Provider name, e.g. "github".
	UID      string `gorm:"type:text;not null;uniqueIndex:idx_authentications_provider_uid"` // Provider-scoped unique ID.

	Profile datatypes.JSON `gorm:"type:jsonb"` // Mapped profile attributes captured at link time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
