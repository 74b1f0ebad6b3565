package identity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cfphub/cfpserver/internal/db"
	"github.com/cfphub/cfpserver/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupReconcileDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:reconcile_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *MemoryStash) {
	t.Helper()
	conn := setupReconcileDB(t)
	stash := NewMemoryStash(time.Minute)
	return NewService(conn, stash), conn, stash
}

func mustCreateUser(t *testing.T, conn *gorm.DB, email, name string) models.User {
	t.Helper()
	user := models.User{Email: email, Name: name, Active: true}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user
}

func mustCreateLink(t *testing.T, conn *gorm.DB, userID uint64, provider, uid string) models.Authentication {
	t.Helper()
	link := models.Authentication{UserID: userID, Provider: provider, UID: uid}
	if errCreate := conn.Create(&link).Error; errCreate != nil {
		t.Fatalf("create link: %v", errCreate)
	}
	return link
}

func TestReconcileExistingLinkSignsInOwner(t *testing.T) {
	svc, conn, _ := newTestService(t)
	owner := mustCreateUser(t, conn, "owner@example.com", "Owner")
	mustCreateLink(t, conn, owner.ID, "github", "42")

	assertion := Assertion{
		Provider: "github",
		UID:      "42",
		Profile:  map[string]string{ProfileEmail: "other@example.com", ProfileName: "Other"},
	}
	outcome, errReconcile := svc.Reconcile(context.Background(), assertion, 0)
	if errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if outcome.Status != StatusSignedIn {
		t.Fatalf("expected status %s, got %s", StatusSignedIn, outcome.Status)
	}
	if outcome.User == nil || outcome.User.ID != owner.ID {
		t.Fatalf("expected owner %d signed in, got %#v", owner.ID, outcome.User)
	}

	var userCount, linkCount int64
	conn.Model(&models.User{}).Count(&userCount)
	conn.Model(&models.Authentication{}).Count(&linkCount)
	if userCount != 1 || linkCount != 1 {
		t.Fatalf("expected no new rows, got %d users and %d links", userCount, linkCount)
	}
}

func TestReconcileExistingLinkWinsOverCurrentUser(t *testing.T) {
	svc, conn, _ := newTestService(t)
	owner := mustCreateUser(t, conn, "owner@example.com", "Owner")
	visitor := mustCreateUser(t, conn, "visitor@example.com", "Visitor")
	mustCreateLink(t, conn, owner.ID, "github", "42")

	assertion := Assertion{Provider: "github", UID: "42"}
	outcome, errReconcile := svc.Reconcile(context.Background(), assertion, visitor.ID)
	if errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if outcome.Status != StatusSignedIn {
		t.Fatalf("expected status %s, got %s", StatusSignedIn, outcome.Status)
	}
	if outcome.User == nil || outcome.User.ID != owner.ID {
		t.Fatalf("expected link owner %d, got %#v", owner.ID, outcome.User)
	}
}

func TestReconcileLinksToCurrentUserIdempotent(t *testing.T) {
	svc, conn, _ := newTestService(t)
	user := mustCreateUser(t, conn, "user@example.com", "User")

	assertion := Assertion{
		Provider: "google",
		UID:      "abc",
		Profile:  map[string]string{ProfileEmail: "user@example.com"},
	}
	for i := 0; i < 2; i++ {
		outcome, errReconcile := svc.Reconcile(context.Background(), assertion, user.ID)
		if errReconcile != nil {
			t.Fatalf("reconcile %d: %v", i, errReconcile)
		}
		want := StatusLinked
		if i == 1 {
			// Second pass finds the link and signs the owner in.
			want = StatusSignedIn
		}
		if outcome.Status != want {
			t.Fatalf("pass %d: expected status %s, got %s", i, want, outcome.Status)
		}
	}

	var linkCount int64
	conn.Model(&models.Authentication{}).
		Where("user_id = ? AND provider = ? AND uid = ?", user.ID, "google", "abc").
		Count(&linkCount)
	if linkCount != 1 {
		t.Fatalf("expected 1 link, got %d", linkCount)
	}
}

func TestReconcileRegistersNewUser(t *testing.T) {
	svc, conn, _ := newTestService(t)

	assertion := Assertion{
		Provider: "github",
		UID:      "77",
		Profile:  map[string]string{ProfileEmail: "new@example.com", ProfileLogin: "newbie"},
	}
	outcome, errReconcile := svc.Reconcile(context.Background(), assertion, 0)
	if errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if outcome.Status != StatusRegistered {
		t.Fatalf("expected status %s, got %s", StatusRegistered, outcome.Status)
	}
	if outcome.User == nil || outcome.User.ID == 0 {
		t.Fatalf("expected persisted user, got %#v", outcome.User)
	}
	if outcome.User.Name != "newbie" {
		t.Fatalf("expected login fallback name, got %q", outcome.User.Name)
	}

	var link models.Authentication
	errFind := conn.Where("provider = ? AND uid = ?", "github", "77").First(&link).Error
	if errFind != nil {
		t.Fatalf("find link: %v", errFind)
	}
	if link.UserID != outcome.User.ID {
		t.Fatalf("expected link owned by %d, got %d", outcome.User.ID, link.UserID)
	}
}

func TestReconcileIncompleteProfileStashesAssertion(t *testing.T) {
	svc, conn, stash := newTestService(t)

	assertion := Assertion{
		Provider: "github",
		UID:      "88",
		Profile:  map[string]string{ProfileLogin: "noemail"},
		RawExtra: []byte(`{"huge":"payload"}`),
	}
	outcome, errReconcile := svc.Reconcile(context.Background(), assertion, 0)
	if errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if outcome.Status != StatusNeedsRegistration {
		t.Fatalf("expected status %s, got %s", StatusNeedsRegistration, outcome.Status)
	}
	if outcome.StashKey == "" {
		t.Fatalf("expected stash key")
	}

	var userCount int64
	conn.Model(&models.User{}).Count(&userCount)
	if userCount != 0 {
		t.Fatalf("expected no users persisted, got %d", userCount)
	}

	stashed, ok, errGet := stash.Get(context.Background(), outcome.StashKey)
	if errGet != nil || !ok {
		t.Fatalf("expected stashed assertion, ok=%v err=%v", ok, errGet)
	}
	if stashed.Provider != "github" || stashed.UID != "88" {
		t.Fatalf("unexpected stashed assertion %#v", stashed)
	}
	if stashed.RawExtra != nil {
		t.Fatalf("raw payload must not be stashed")
	}
}

func TestReconcileDuplicateEmailDefersToManualFlow(t *testing.T) {
	svc, conn, _ := newTestService(t)
	mustCreateUser(t, conn, "taken@example.com", "Existing")

	assertion := Assertion{
		Provider: "github",
		UID:      "99",
		Profile:  map[string]string{ProfileEmail: "taken@example.com", ProfileName: "Clone"},
	}
	outcome, errReconcile := svc.Reconcile(context.Background(), assertion, 0)
	if errReconcile != nil {
		t.Fatalf("reconcile: %v", errReconcile)
	}
	if outcome.Status != StatusNeedsRegistration {
		t.Fatalf("expected status %s, got %s", StatusNeedsRegistration, outcome.Status)
	}

	var userCount, linkCount int64
	conn.Model(&models.User{}).Count(&userCount)
	conn.Model(&models.Authentication{}).Count(&linkCount)
	if userCount != 1 || linkCount != 0 {
		t.Fatalf("expected failed registration to persist nothing, got %d users and %d links", userCount, linkCount)
	}
}

func TestReconcileRejectsEmptyAssertion(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, errReconcile := svc.Reconcile(context.Background(), Assertion{Provider: "github"}, 0); errReconcile == nil {
		t.Fatalf("expected error for missing uid")
	}
	if _, errReconcile := svc.Reconcile(context.Background(), Assertion{UID: "1"}, 0); errReconcile == nil {
		t.Fatalf("expected error for missing provider")
	}
}

func TestUnlinkScopedToOwner(t *testing.T) {
	svc, conn, _ := newTestService(t)
	owner := mustCreateUser(t, conn, "owner@example.com", "Owner")
	other := mustCreateUser(t, conn, "other@example.com", "Other")
	link := mustCreateLink(t, conn, owner.ID, "github", "42")

	if errUnlink := svc.Unlink(context.Background(), other.ID, link.ID); errUnlink != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign link, got %v", errUnlink)
	}
	if errUnlink := svc.Unlink(context.Background(), owner.ID, link.ID); errUnlink != nil {
		t.Fatalf("unlink own link: %v", errUnlink)
	}
	if errUnlink := svc.Unlink(context.Background(), owner.ID, link.ID); errUnlink != ErrNotFound {
		t.Fatalf("expected ErrNotFound for deleted link, got %v", errUnlink)
	}
}

func TestCompleteRegistrationLinksStashedAssertion(t *testing.T) {
	svc, conn, stash := newTestService(t)

	assertion := Assertion{Provider: "github", UID: "55", Profile: map[string]string{ProfileLogin: "late"}}
	if errPut := stash.Put(context.Background(), "key-1", assertion); errPut != nil {
		t.Fatalf("stash put: %v", errPut)
	}
	user := mustCreateUser(t, conn, "late@example.com", "Late")

	if errComplete := svc.CompleteRegistration(context.Background(), "key-1", user.ID); errComplete != nil {
		t.Fatalf("complete registration: %v", errComplete)
	}

	var link models.Authentication
	if errFind := conn.Where("provider = ? AND uid = ?", "github", "55").First(&link).Error; errFind != nil {
		t.Fatalf("find link: %v", errFind)
	}
	if link.UserID != user.ID {
		t.Fatalf("expected link owned by %d, got %d", user.ID, link.UserID)
	}

	if _, ok, _ := stash.Get(context.Background(), "key-1"); ok {
		t.Fatalf("expected stash entry consumed")
	}
	if errComplete := svc.CompleteRegistration(context.Background(), "key-1", user.ID); errComplete != ErrNotFound {
		t.Fatalf("expected ErrNotFound for consumed key, got %v", errComplete)
	}
}
