package db

import (
	"fmt"

	"github.com/cfphub/cfpserver/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all persisted models.
//
// Uniqueness of (provider, uid) on authentications and of (user, proposal)
// on ratings and notes is enforced here at the storage boundary; callers
// that race on those pairs get a constraint violation, not silent duplicates.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Authentication{},
		&models.Call{},
		&models.Proposal{},
		&models.UserProposalRating{},
		&models.Rating{},
		&models.Note{},
		&models.Admin{},
		&models.Setting{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}
