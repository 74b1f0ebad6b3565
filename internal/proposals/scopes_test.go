package proposals

import (
	"context"
	"testing"

	"github.com/cfphub/cfpserver/internal/models"
	"gorm.io/gorm"
)

type scopeFixture struct {
	store        *Store
	conn         *gorm.DB
	speaker      models.User
	reviewer     models.User
	openRecord   *models.Proposal
	closedRecord *models.Proposal
	hiddenRecord *models.Proposal
}

func seedScopeFixture(t *testing.T) scopeFixture {
	t.Helper()
	store, conn := setupStore(t)

	openCall := models.Call{Title: "Open call", Open: true}
	closedCall := models.Call{Title: "Closed call", Open: false}
	archivedCall := models.Call{Title: "Archived call", Open: false, Archived: true}
	for _, call := range []*models.Call{&openCall, &closedCall, &archivedCall} {
		if errCreate := conn.Create(call).Error; errCreate != nil {
			t.Fatalf("create call: %v", errCreate)
		}
	}

	speaker := models.User{Email: "speaker@example.com", Name: "Speaker", Active: true}
	reviewer := models.User{Email: "reviewer@example.com", Name: "Reviewer", Active: true}
	for _, user := range []*models.User{&speaker, &reviewer} {
		if errCreate := conn.Create(user).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}

	// openRecord is mentor-readable and selected; closedRecord sits on a
	// closed call; hiddenRecord sits on an archived call.
	openRecord := seedProposalWith(t, store, openCall.ID, speaker.ID, "Deep dive into iterators", true)
	closedRecord := seedProposalWith(t, store, closedCall.ID, speaker.ID, "State of the toolchain", false)
	hiddenRecord := seedProposalWith(t, store, archivedCall.ID, speaker.ID, "Retired topic", false)

	if errSelect := conn.Model(&models.Proposal{}).Where("id = ?", openRecord.ID).Update("selected", true).Error; errSelect != nil {
		t.Fatalf("select proposal: %v", errSelect)
	}

	return scopeFixture{
		store:        store,
		conn:         conn,
		speaker:      speaker,
		reviewer:     reviewer,
		openRecord:   openRecord,
		closedRecord: closedRecord,
		hiddenRecord: hiddenRecord,
	}
}

func seedProposalWith(t *testing.T, store *Store, callID, userID uint64, title string, mentors bool) *models.Proposal {
	t.Helper()
	record, errCreate := store.Create(context.Background(), CreateParams{
		CallID:                     callID,
		UserID:                     userID,
		Title:                      title,
		PublicDescription:          "desc",
		TimeSlot:                   "30min",
		MentorsCanRead:             mentors,
		TermsAndConditionsAccepted: true,
	})
	if errCreate != nil {
		t.Fatalf("create proposal: %v", errCreate)
	}
	return record
}

func queryIDs(t *testing.T, conn *gorm.DB, scopes ...Scope) []string {
	t.Helper()
	var ids []string
	query := conn.Model(&models.Proposal{})
	for _, scope := range scopes {
		query = query.Scopes(scope)
	}
	if errFind := query.Order("proposals.created_at ASC").Pluck("proposals.id", &ids).Error; errFind != nil {
		t.Fatalf("query proposals: %v", errFind)
	}
	return ids
}

func TestVisibleExcludesArchivedCalls(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, Visible)
	if len(ids) != 2 {
		t.Fatalf("expected 2 visible proposals, got %v", ids)
	}
	for _, id := range ids {
		if id == f.hiddenRecord.ID {
			t.Fatalf("archived proposal %s must not be visible", id)
		}
	}
}

func TestForOpenCall(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, ForOpenCall)
	if len(ids) != 1 || ids[0] != f.openRecord.ID {
		t.Fatalf("expected only %s, got %v", f.openRecord.ID, ids)
	}
}

func TestMentorsCanReadScope(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, MentorsCanRead)
	if len(ids) != 1 || ids[0] != f.openRecord.ID {
		t.Fatalf("expected only %s, got %v", f.openRecord.ID, ids)
	}
}

func TestSelectedScope(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, Selected)
	if len(ids) != 1 || ids[0] != f.openRecord.ID {
		t.Fatalf("expected only %s, got %v", f.openRecord.ID, ids)
	}
}

func TestNotFromExcludesOwnProposals(t *testing.T) {
	f := seedScopeFixture(t)
	if ids := queryIDs(t, f.conn, NotFrom(f.speaker.ID)); len(ids) != 0 {
		t.Fatalf("expected no foreign proposals, got %v", ids)
	}
	if ids := queryIDs(t, f.conn, NotFrom(f.reviewer.ID)); len(ids) != 3 {
		t.Fatalf("expected all proposals, got %v", ids)
	}
}

func TestNotRatedByUser(t *testing.T) {
	f := seedScopeFixture(t)
	if _, errRate := f.store.Rate(context.Background(), f.openRecord.ID, f.reviewer.ID, map[string]int{"clarity": 3}); errRate != nil {
		t.Fatalf("rate: %v", errRate)
	}

	ids := queryIDs(t, f.conn, NotRatedByUser(f.reviewer.ID))
	if len(ids) != 2 {
		t.Fatalf("expected 2 unrated proposals, got %v", ids)
	}
	for _, id := range ids {
		if id == f.openRecord.ID {
			t.Fatalf("rated proposal %s must be excluded", id)
		}
	}

	// A different reviewer still sees everything.
	if ids := queryIDs(t, f.conn, NotRatedByUser(f.speaker.ID)); len(ids) != 3 {
		t.Fatalf("expected 3 proposals for non-rater, got %v", ids)
	}
}

func TestTitleMatchesCaseInsensitive(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, TitleMatches(f.conn, "ITERATORS"))
	if len(ids) != 1 || ids[0] != f.openRecord.ID {
		t.Fatalf("expected only %s, got %v", f.openRecord.ID, ids)
	}
}

func TestScopesCompose(t *testing.T) {
	f := seedScopeFixture(t)
	ids := queryIDs(t, f.conn, Visible, MentorsCanRead, NotFrom(f.reviewer.ID))
	if len(ids) != 1 || ids[0] != f.openRecord.ID {
		t.Fatalf("expected only %s, got %v", f.openRecord.ID, ids)
	}
}
