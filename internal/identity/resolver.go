package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kryote/support-chat/internal/logger"
	"github.com/kryote/support-chat/internal/models"
)

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

// Resolver turns an inbound (cookie, assertion) pair into exactly one
// canonical user. It is a pure function of its inputs plus the store: the
// cookie comes in as a string and any rewrite goes out as a CookieUpdate,
// so no HTTP machinery is needed to test it.
type Resolver struct {
	store    *Store
	migrator *Migrator
	log      *logger.Logger

	cookieSecret string
	cookieTTL    time.Duration
}

func NewResolver(store *Store, migrator *Migrator, log *logger.Logger, cookieSecret string, cookieTTL time.Duration) *Resolver {
	return &Resolver{
		store:        store,
		migrator:     migrator,
		log:          log.With("component", "identity.resolver"),
		cookieSecret: cookieSecret,
		cookieTTL:    cookieTTL,
	}
}

// Resolve implements the session state machine. rawCookie is empty when the
// request carried no session cookie; assertion is nil outside the login
// endpoint. The returned CookieUpdate is nil when the cookie should stay as
// it is.
func (r *Resolver) Resolve(ctx context.Context, rawCookie string, assertion *Assertion) (*models.User, State, *CookieUpdate, error) {
	if assertion != nil {
		return r.resolveAuthenticated(ctx, rawCookie, assertion)
	}
	if rawCookie == "" {
		return r.createAnonymous(ctx)
	}
	return r.resolveFromCookie(ctx, rawCookie)
}

// createAnonymous handles first contact: mint a token, insert the walk-in
// user, hand both back in a fresh cookie. Two racing first contacts from one
// browser may mint two users; subsequent requests converge on whichever
// cookie the client kept.
func (r *Resolver) createAnonymous(ctx context.Context) (*models.User, State, *CookieUpdate, error) {
	id, err := NewUserID()
	if err != nil {
		return nil, 0, nil, err
	}
	token := uuid.NewString()

	u := &models.User{
		ID:             id,
		AnonymousToken: &token,
		IsAnonymous:    true,
	}
	if err := r.store.CreateUser(ctx, u); err != nil {
		return nil, 0, nil, fmt.Errorf("create anonymous user: %w", err)
	}

	value, err := EncodeCookie(r.cookieSecret, u.ID, token, r.cookieTTL)
	if err != nil {
		return nil, 0, nil, err
	}
	return u, StateAnonymous, &CookieUpdate{Value: value, MaxAge: r.cookieTTL}, nil
}

func (r *Resolver) resolveFromCookie(ctx context.Context, rawCookie string) (*models.User, State, *CookieUpdate, error) {
	userID, anonToken, err := DecodeCookie(r.cookieSecret, rawCookie)
	if err != nil {
		return nil, 0, nil, err
	}

	if anonToken != "" {
		u, err := r.store.GetUserByAnonymousToken(ctx, anonToken)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, nil, fmt.Errorf("%w: unknown anonymous token", ErrSessionInvalid)
			}
			return nil, 0, nil, err
		}
		// A migrated-away row is no longer a valid lookup target; the client
		// holds a stale cookie and must restart.
		if !u.IsAnonymous || u.ID != userID {
			return nil, 0, nil, fmt.Errorf("%w: anonymous identity no longer live", ErrSessionInvalid)
		}
		return u, StateAnonymous, nil, nil
	}

	u, err := r.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, nil, fmt.Errorf("%w: unknown user", ErrSessionInvalid)
		}
		return nil, 0, nil, err
	}
	// A uid-only cookie marks an authenticated identity; an anonymous row
	// behind one is inconsistent.
	if u.IsAnonymous {
		return nil, 0, nil, fmt.Errorf("%w: anonymous user behind authenticated cookie", ErrSessionInvalid)
	}
	return u, StateAuthenticated, nil, nil
}

func (r *Resolver) resolveAuthenticated(ctx context.Context, rawCookie string, assertion *Assertion) (*models.User, State, *CookieUpdate, error) {
	u, err := r.store.GetUserByExternalIdentityID(ctx, assertion.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u, err = r.createAuthenticated(ctx, assertion)
	}
	if err != nil {
		return nil, 0, nil, err
	}

	if assertion.Email != "" && (u.Email == nil || *u.Email != assertion.Email) {
		if uerr := r.store.UpdateUserEmail(ctx, u.ID, assertion.Email); uerr != nil {
			r.log.Warn("refresh email failed", "user_id", u.ID, "error", uerr)
		} else {
			email := assertion.Email
			u.Email = &email
		}
	}

	// Carry over any prior anonymous history. The login itself must survive
	// whatever happens here, so failures are logged and swallowed.
	if anon := r.priorAnonymousUser(ctx, rawCookie); anon != nil && anon.ID != u.ID {
		if merr := r.migrator.Migrate(ctx, anon.ID, u.ID); merr != nil {
			r.log.Error("identity migration failed, login proceeds without history",
				"anonymous_user_id", anon.ID, "user_id", u.ID, "error", merr)
		}
	}

	value, err := EncodeCookie(r.cookieSecret, u.ID, "", r.cookieTTL)
	if err != nil {
		return nil, 0, nil, err
	}
	return u, StateAuthenticated, &CookieUpdate{Value: value, MaxAge: r.cookieTTL}, nil
}

func (r *Resolver) createAuthenticated(ctx context.Context, assertion *Assertion) (*models.User, error) {
	id, err := NewUserID()
	if err != nil {
		return nil, err
	}
	subject := assertion.Subject
	u := &models.User{
		ID:                 id,
		ExternalIdentityID: &subject,
		IsAnonymous:        false,
	}
	if assertion.Email != "" {
		email := assertion.Email
		u.Email = &email
	}
	if err := r.store.CreateUser(ctx, u); err != nil {
		// Lost a duplicate-login race; the winner's row is the identity.
		if existing, gerr := r.store.GetUserByExternalIdentityID(ctx, subject); gerr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create authenticated user: %w", err)
	}
	return u, nil
}

// priorAnonymousUser resolves the pre-login cookie to a live anonymous user,
// or nil. On the login path a bad cookie is discarded, not fatal: the user is
// authenticating right now and a corrupt leftover cookie must not stop them.
func (r *Resolver) priorAnonymousUser(ctx context.Context, rawCookie string) *models.User {
	if rawCookie == "" {
		return nil
	}
	_, anonToken, err := DecodeCookie(r.cookieSecret, rawCookie)
	if err != nil || anonToken == "" {
		return nil
	}
	u, err := r.store.GetUserByAnonymousToken(ctx, anonToken)
	if err != nil || !u.IsAnonymous {
		return nil
	}
	return u
}
