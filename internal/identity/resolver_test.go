package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/kryote/support-chat/internal/chat"
	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/models"
)

const testSecret = "test-secret"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &chat.Session{}, &chat.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestResolver(t *testing.T, db *gorm.DB) *Resolver {
	t.Helper()
	return NewResolver(NewStore(db), NewMigrator(db), logger.NewNop(), testSecret, 30*24*time.Hour)
}

func TestResolve_FirstContactMintsAnonymousIdentity(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	user, state, update, err := r.Resolve(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state != StateAnonymous {
		t.Fatalf("expected anonymous state, got %v", state)
	}
	if !user.IsAnonymous || user.AnonymousToken == nil {
		t.Fatalf("expected walk-in user with token, got %+v", user)
	}
	if update == nil || update.Value == "" {
		t.Fatalf("expected cookie update on first contact")
	}

	uid, anon, err := DecodeCookie(testSecret, update.Value)
	if err != nil {
		t.Fatalf("decode minted cookie: %v", err)
	}
	if uid != user.ID || anon != *user.AnonymousToken {
		t.Fatalf("cookie does not match minted identity")
	}
}

func TestResolve_RevisitResolvesSameUserWithoutRewrite(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	first, _, update, err := r.Resolve(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("first contact: %v", err)
	}

	again, state, update2, err := r.Resolve(context.Background(), update.Value, nil)
	if err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if again.ID != first.ID || state != StateAnonymous {
		t.Fatalf("revisit should converge on the same user")
	}
	if update2 != nil {
		t.Fatalf("steady-state revisit should not rewrite the cookie")
	}
}

func TestResolve_CorruptedCookieIsSessionInvalid(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	_, _, _, err := r.Resolve(context.Background(), "not-a-jwt", nil)
	if !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestResolve_DeletedUserBehindCookieIsSessionInvalid(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	user, _, update, err := r.Resolve(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("first contact: %v", err)
	}
	if err := db.Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		t.Fatalf("delete user: %v", err)
	}

	// The identity is gone; fabricating a fresh one would mask data loss.
	if _, _, _, err := r.Resolve(context.Background(), update.Value, nil); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}

func TestResolve_LoginMigratesAnonymousHistory(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	anon, _, update, err := r.Resolve(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("first contact: %v", err)
	}

	sid, err := chat.NewSessionID()
	if err != nil {
		t.Fatalf("session id: %v", err)
	}
	if err := db.Create(&chat.Session{ID: sid, OwnerUserID: anon.ID}).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := db.Create(&chat.Message{ChatSessionID: sid, Role: chat.RoleUser, Content: "pre-login"}).Error; err != nil {
		t.Fatalf("create message: %v", err)
	}

	authUser, state, update2, err := r.Resolve(context.Background(), update.Value, &Assertion{
		Subject: "google|abc", Email: "x@example.com",
	})
	if err != nil {
		t.Fatalf("login resolve: %v", err)
	}
	if state != StateAuthenticated || authUser.IsAnonymous {
		t.Fatalf("expected authenticated user, got state=%v user=%+v", state, authUser)
	}
	if authUser.ID == anon.ID {
		t.Fatalf("authenticated user must be a distinct identity")
	}
	if authUser.Email == nil || *authUser.Email != "x@example.com" {
		t.Fatalf("expected email from assertion")
	}

	// Cookie rewritten to authenticated form: uid only, no anon marker.
	if update2 == nil {
		t.Fatalf("expected cookie rewrite on login")
	}
	uid, anonToken, err := DecodeCookie(testSecret, update2.Value)
	if err != nil {
		t.Fatalf("decode rewritten cookie: %v", err)
	}
	if uid != authUser.ID || anonToken != "" {
		t.Fatalf("rewritten cookie should carry uid only")
	}

	// History moved, messages untouched.
	var sess chat.Session
	if err := db.First(&sess, "id = ?", sid).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if sess.OwnerUserID != authUser.ID {
		t.Fatalf("session not reassigned, owner=%s", sess.OwnerUserID)
	}
	var msgs []chat.Message
	if err := db.Where("chat_session_id = ?", sid).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("reload messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "pre-login" {
		t.Fatalf("messages must survive migration unmodified, got %+v", msgs)
	}

	// The anonymous row is retained but no longer a live lookup target.
	var anonRow models.User
	if err := db.First(&anonRow, "id = ?", anon.ID).Error; err != nil {
		t.Fatalf("anonymous row must be retained: %v", err)
	}
	if anonRow.IsAnonymous {
		t.Fatalf("anonymous row should be marked processed")
	}
	if _, _, _, err := r.Resolve(context.Background(), update.Value, nil); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("stale anonymous cookie must be ErrSessionInvalid, got %v", err)
	}
}

func TestResolve_LoginWithoutPriorAnonymousSkipsMigration(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	user, state, update, err := r.Resolve(context.Background(), "", &Assertion{Subject: "google|fresh"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if state != StateAuthenticated || user.IsAnonymous {
		t.Fatalf("expected authenticated identity")
	}
	if update == nil {
		t.Fatalf("expected cookie update")
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one user, got %d", count)
	}
}

func TestResolve_RepeatLoginFindsExistingUser(t *testing.T) {
	db := openTestDB(t)
	r := newTestResolver(t, db)

	first, _, _, err := r.Resolve(context.Background(), "", &Assertion{Subject: "google|abc", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, _, _, err := r.Resolve(context.Background(), "", &Assertion{Subject: "google|abc", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same subject must resolve to the same user")
	}
	if second.Email == nil || *second.Email != "b@example.com" {
		t.Fatalf("expected refreshed email, got %v", second.Email)
	}
}

func TestCookieRoundTrip(t *testing.T) {
	value, err := EncodeCookie(testSecret, "01USER", "tok-123", time.Hour)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	uid, anon, err := DecodeCookie(testSecret, value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if uid != "01USER" || anon != "tok-123" {
		t.Fatalf("round trip mismatch: uid=%q anon=%q", uid, anon)
	}

	if _, _, err := DecodeCookie("other-secret", value); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("wrong secret must be ErrSessionInvalid, got %v", err)
	}

	expired, err := EncodeCookie(testSecret, "01USER", "", -time.Hour)
	if err != nil {
		t.Fatalf("encode expired: %v", err)
	}
	if _, _, err := DecodeCookie(testSecret, expired); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expired cookie must be ErrSessionInvalid, got %v", err)
	}
}
