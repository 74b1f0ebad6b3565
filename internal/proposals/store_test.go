package proposals

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cfphub/cfpserver/internal/db"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/cfphub/cfpserver/internal/security"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:proposals_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return NewStore(conn), conn
}

func seedCallAndUser(t *testing.T, conn *gorm.DB, open bool) (models.Call, models.User) {
	t.Helper()
	call := models.Call{Title: "Conference 2026", Open: open}
	if errCreate := conn.Create(&call).Error; errCreate != nil {
		t.Fatalf("create call: %v", errCreate)
	}
	user := models.User{Email: fmt.Sprintf("speaker_%d@example.com", time.Now().UnixNano()), Name: "Speaker", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return call, user
}

func seedProposal(t *testing.T, store *Store, callID, userID uint64) *models.Proposal {
	t.Helper()
	record, errCreate := store.Create(context.Background(), CreateParams{
		CallID:                     callID,
		UserID:                     userID,
		Title:                      "Generics in practice",
		PublicDescription:          "What generics changed",
		TimeSlot:                   "30min",
		TermsAndConditionsAccepted: true,
	})
	if errCreate != nil {
		t.Fatalf("create proposal: %v", errCreate)
	}
	return record
}

func TestCreateAssignsRandomIdentifier(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)

	record := seedProposal(t, store, call.ID, user.ID)
	if len(record.ID) != 32 {
		t.Fatalf("expected 32-char id, got %q", record.ID)
	}
	for _, c := range record.ID {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("expected lowercase hex id, got %q", record.ID)
		}
	}
}

func TestGeneratedIdentifiersDoNotCollide(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id, errID := security.GenerateProposalID()
		if errID != nil {
			t.Fatalf("generate id: %v", errID)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestCreateRequiresTermsAcceptance(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)

	_, errCreate := store.Create(context.Background(), CreateParams{
		CallID:            call.ID,
		UserID:            user.ID,
		Title:             "No terms",
		PublicDescription: "desc",
		TimeSlot:          "30min",
	})
	var verrs ValidationErrors
	if !errors.As(errCreate, &verrs) {
		t.Fatalf("expected validation errors, got %v", errCreate)
	}
	if len(verrs) != 1 || verrs[0].Field != "terms_and_conditions" || verrs[0].Reason != ReasonMustBeAccepted {
		t.Fatalf("unexpected validation errors %#v", verrs)
	}
}

func TestCreateReportsAllMissingFields(t *testing.T) {
	store, _ := setupStore(t)

	_, errCreate := store.Create(context.Background(), CreateParams{})
	var verrs ValidationErrors
	if !errors.As(errCreate, &verrs) {
		t.Fatalf("expected validation errors, got %v", errCreate)
	}
	wantFields := []string{"title", "public_description", "time_slot", "call", "user", "terms_and_conditions"}
	if len(verrs) != len(wantFields) {
		t.Fatalf("expected %d errors, got %#v", len(wantFields), verrs)
	}
	for i, field := range wantFields {
		if verrs[i].Field != field {
			t.Fatalf("expected error %d on %q, got %q", i, field, verrs[i].Field)
		}
	}
}

func TestUpdateDoesNotRecheckTerms(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	title := "Generics revisited"
	updated, errUpdate := store.Update(context.Background(), record.ID, UpdateParams{Title: &title})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	if updated.Title != title {
		t.Fatalf("expected title %q, got %q", title, updated.Title)
	}
}

func TestUpdateRejectsBlankRequiredField(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	blank := "   "
	_, errUpdate := store.Update(context.Background(), record.ID, UpdateParams{Title: &blank})
	var verrs ValidationErrors
	if !errors.As(errUpdate, &verrs) {
		t.Fatalf("expected validation errors, got %v", errUpdate)
	}
	if len(verrs) != 1 || verrs[0].Field != "title" {
		t.Fatalf("unexpected validation errors %#v", verrs)
	}
}

func TestUpdateClosedCallNotEditable(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	if errClose := conn.Model(&models.Call{}).Where("id = ?", call.ID).Update("open", false).Error; errClose != nil {
		t.Fatalf("close call: %v", errClose)
	}

	title := "Too late"
	if _, errUpdate := store.Update(context.Background(), record.ID, UpdateParams{Title: &title}); !errors.Is(errUpdate, ErrNotEditable) {
		t.Fatalf("expected ErrNotEditable, got %v", errUpdate)
	}
}

func TestUpdateMissingProposal(t *testing.T) {
	store, _ := setupStore(t)
	title := "x"
	if _, errUpdate := store.Update(context.Background(), "deadbeef", UpdateParams{Title: &title}); !errors.Is(errUpdate, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errUpdate)
	}
}

func seedRater(t *testing.T, conn *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Name: "Rater", Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create rater: %v", errCreate)
	}
	return user
}

func TestScoreAveragesOverRatersNotVotes(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	alice := seedRater(t, conn, "alice@example.com")
	bob := seedRater(t, conn, "bob@example.com")

	// Alice votes on two dimensions, Bob on one. Two raters total.
	if _, errRate := store.Rate(context.Background(), record.ID, alice.ID, map[string]int{"clarity": 4, "relevance": 3}); errRate != nil {
		t.Fatalf("rate alice: %v", errRate)
	}
	if _, errRate := store.Rate(context.Background(), record.ID, bob.ID, map[string]int{"clarity": 4}); errRate != nil {
		t.Fatalf("rate bob: %v", errRate)
	}

	score, ok, errScore := store.Score(context.Background(), record.ID)
	if errScore != nil {
		t.Fatalf("score: %v", errScore)
	}
	if !ok || score != 5.5 {
		t.Fatalf("expected score 5.5, got %v ok=%v", score, ok)
	}

	clarity, ok, errScore := store.ScoreByDimension(context.Background(), record.ID, "clarity")
	if errScore != nil {
		t.Fatalf("score clarity: %v", errScore)
	}
	if !ok || clarity != 4.0 {
		t.Fatalf("expected clarity score 4.0, got %v ok=%v", clarity, ok)
	}

	relevance, ok, errScore := store.ScoreByDimension(context.Background(), record.ID, "relevance")
	if errScore != nil {
		t.Fatalf("score relevance: %v", errScore)
	}
	if !ok || relevance != 1.5 {
		t.Fatalf("expected relevance score 1.5, got %v ok=%v", relevance, ok)
	}
}

func TestScoreWithoutRaters(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	score, ok, errScore := store.Score(context.Background(), record.ID)
	if errScore != nil {
		t.Fatalf("score: %v", errScore)
	}
	if ok || score != 0 {
		t.Fatalf("expected no score, got %v ok=%v", score, ok)
	}
}

func TestRateSecondRelationConflicts(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)
	alice := seedRater(t, conn, "alice@example.com")

	if _, errRate := store.Rate(context.Background(), record.ID, alice.ID, map[string]int{"clarity": 3}); errRate != nil {
		t.Fatalf("rate: %v", errRate)
	}
	if _, errRate := store.Rate(context.Background(), record.ID, alice.ID, map[string]int{"clarity": 5}); !errors.Is(errRate, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", errRate)
	}

	rated, errRated := store.RatedBy(context.Background(), record.ID, alice.ID)
	if errRated != nil {
		t.Fatalf("rated by: %v", errRated)
	}
	if !rated {
		t.Fatalf("expected rated by alice")
	}
}

func TestRatedByUnratedProposal(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)

	rated, errRated := store.RatedBy(context.Background(), record.ID, user.ID)
	if errRated != nil {
		t.Fatalf("rated by: %v", errRated)
	}
	if rated {
		t.Fatalf("expected not rated")
	}
}

func TestAttachNote(t *testing.T) {
	store, conn := setupStore(t)
	call, user := seedCallAndUser(t, conn, true)
	record := seedProposal(t, store, call.ID, user.ID)
	alice := seedRater(t, conn, "alice@example.com")

	if _, errNote := store.AttachNote(context.Background(), record.ID, alice.ID, "  "); errNote == nil {
		t.Fatalf("expected validation error for blank body")
	}
	if _, errNote := store.AttachNote(context.Background(), record.ID, alice.ID, "strong opener"); errNote != nil {
		t.Fatalf("attach note: %v", errNote)
	}
	if _, errNote := store.AttachNote(context.Background(), record.ID, alice.ID, "second thoughts"); !errors.Is(errNote, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", errNote)
	}

	attached, errAttached := store.NoteAttachedBy(context.Background(), record.ID, alice.ID)
	if errAttached != nil {
		t.Fatalf("note attached by: %v", errAttached)
	}
	if !attached {
		t.Fatalf("expected note attached")
	}
}
