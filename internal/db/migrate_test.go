package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/cfphub/cfpserver/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupMigratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestMigrateCreatesAllTables(t *testing.T) {
	conn := setupMigratedDB(t)
	tables := []string{
		"users", "authentications", "calls", "proposals",
		"user_proposal_ratings", "ratings", "notes", "admins", "settings",
	}
	for _, table := range tables {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}

func TestProviderUIDPairIsUnique(t *testing.T) {
	conn := setupMigratedDB(t)

	alice := models.User{Email: "alice@example.com", Name: "Alice", Active: true}
	bob := models.User{Email: "bob@example.com", Name: "Bob", Active: true}
	for _, user := range []*models.User{&alice, &bob} {
		if errCreate := conn.Create(user).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}

	first := models.Authentication{UserID: alice.ID, Provider: "github", UID: "42"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create link: %v", errCreate)
	}
	dup := models.Authentication{UserID: bob.ID, Provider: "github", UID: "42"}
	if errCreate := conn.Create(&dup).Error; errCreate == nil {
		t.Fatalf("expected unique violation for duplicate (provider, uid)")
	}

	// Same provider with a different uid is fine.
	other := models.Authentication{UserID: bob.ID, Provider: "github", UID: "43"}
	if errCreate := conn.Create(&other).Error; errCreate != nil {
		t.Fatalf("create second link: %v", errCreate)
	}
}

func TestRatingRelationPairIsUnique(t *testing.T) {
	conn := setupMigratedDB(t)

	user := models.User{Email: "rater@example.com", Name: "Rater", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	call := models.Call{Title: "Call", Open: true}
	if errCreate := conn.Create(&call).Error; errCreate != nil {
		t.Fatalf("create call: %v", errCreate)
	}
	record := models.Proposal{
		ID: "0123456789abcdef0123456789abcdef", CallID: call.ID, UserID: user.ID,
		Title: "T", PublicDescription: "D", TimeSlot: "30min",
	}
	if errCreate := conn.Create(&record).Error; errCreate != nil {
		t.Fatalf("create proposal: %v", errCreate)
	}

	first := models.UserProposalRating{UserID: user.ID, ProposalID: record.ID}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create relation: %v", errCreate)
	}
	dup := models.UserProposalRating{UserID: user.ID, ProposalID: record.ID}
	if errCreate := conn.Create(&dup).Error; errCreate == nil {
		t.Fatalf("expected unique violation for duplicate (user, proposal) relation")
	}
}

func TestNotePairIsUnique(t *testing.T) {
	conn := setupMigratedDB(t)

	user := models.User{Email: "noter@example.com", Name: "Noter", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	call := models.Call{Title: "Call", Open: true}
	if errCreate := conn.Create(&call).Error; errCreate != nil {
		t.Fatalf("create call: %v", errCreate)
	}
	record := models.Proposal{
		ID: "fedcba9876543210fedcba9876543210", CallID: call.ID, UserID: user.ID,
		Title: "T", PublicDescription: "D", TimeSlot: "30min",
	}
	if errCreate := conn.Create(&record).Error; errCreate != nil {
		t.Fatalf("create proposal: %v", errCreate)
	}

	first := models.Note{UserID: user.ID, ProposalID: record.ID, Body: "first"}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create note: %v", errCreate)
	}
	dup := models.Note{UserID: user.ID, ProposalID: record.ID, Body: "second"}
	if errCreate := conn.Create(&dup).Error; errCreate == nil {
		t.Fatalf("expected unique violation for duplicate (user, proposal) note")
	}
}

func TestUserEmailIsUnique(t *testing.T) {
	conn := setupMigratedDB(t)

	first := models.User{Email: "same@example.com", Name: "First", Active: true}
	if errCreate := conn.Create(&first).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	dup := models.User{Email: "same@example.com", Name: "Second", Active: true}
	if errCreate := conn.Create(&dup).Error; errCreate == nil {
		t.Fatalf("expected unique violation for duplicate email")
	}
}
