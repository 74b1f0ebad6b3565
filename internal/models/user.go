package models

import "time"

// User represents a speaker or reviewer account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email string `gorm:"type:text;not null;uniqueIndex"` // Unique contact email.
	Name  string `gorm:"type:text;not null"`             // Display name.

	Password   string `gorm:"type:text"` // Bcrypt hash; empty for federated-only accounts.
	TOTPSecret string `gorm:"type:text"` // TOTP secret when MFA is enabled.

	Active bool `gorm:"not null;default:true"` // Whether the user can sign in.

	Authentications []Authentication `gorm:"foreignKey:UserID"` // Linked federated identities.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
