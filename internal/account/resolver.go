// Package account maps a verified external identity onto a local user and
// binds it to the login session.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/redirect"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// ErrLogic marks a provider combination the conversion table does not cover.
var ErrLogic = errors.New("unknown sso source conversion")

const (
	MsgLocalAccount     = "Can't login to local account using SSO"
	MsgDeveloperAccount = "Your account is a developer account. You need to login through the Development Forums."
)

// Audit messages.
const (
	auditDeveloperUpgrade = "User is now a developer due to different SSO login type"
	auditUnsuspend        = "Un-suspending automatically suspended user due to SSO source change"
)

// Request is one resolution: the identity a provider vouched for and the
// session the attempt was started on.
type Request struct {
	Identity   *sso.ExternalIdentity
	Session    *entity.Session
	ReturnURL  string
	RemoteAddr string
}

// Result is a successful resolution.
type Result struct {
	User     *userentity.User
	Created  bool
	Redirect string
}

type Resolver struct {
	sessions  *session.Store
	sanitizer *redirect.Sanitizer
	logger    *zap.SugaredLogger
}

func NewResolver(sessions *session.Store, sanitizer *redirect.Sanitizer, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{sessions: sessions, sanitizer: sanitizer, logger: logger}
}

// Resolve finds or creates the user for req.Identity, applies the provider
// conversion rules and binds the session. Policy outcomes are *sso.Rejection
// and leave the session unbound.
func (r *Resolver) Resolve(ctx context.Context, tx store.Tx, req Request) (*Result, error) {
	email := strings.TrimSpace(req.Identity.Email)
	username := strings.TrimSpace(req.Identity.Username)
	if email == "" || username == "" {
		return nil, sso.ErrInvalidParameters
	}
	provider := string(req.Identity.Provider)
	r.logger.Infow("logging in sso user", "email", email, "provider", provider)

	users := tx.Users()
	u, err := users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	created := false
	switch {
	case u == nil:
		u, err = r.create(ctx, tx, email, username, req.Identity.Provider)
		if err != nil {
			return nil, err
		}
		created = true
	case u.Local:
		return nil, &sso.Rejection{Message: MsgLocalAccount}
	case u.SsoSource != provider:
		if err := r.convert(ctx, tx, u, req.Identity.Provider); err != nil {
			return nil, err
		}
		u.BumpUpdatedAt()
		if err := users.Update(ctx, u); err != nil {
			return nil, err
		}
	}

	if u.Suspended {
		if u.SuspendedManually {
			return nil, &sso.Rejection{Message: "Your account is suspended manually"}
		}
		reason := ""
		if u.SuspendedReason != nil {
			reason = *u.SuspendedReason
		}
		return nil, &sso.Rejection{Message: "Your account is suspended with the reason: " + reason}
	}

	if u.Username != username {
		if err := r.rename(ctx, tx, u, username); err != nil {
			return nil, err
		}
	}

	if err := r.sessions.Bind(ctx, tx, req.Session, false, u, req.RemoteAddr); err != nil {
		return nil, err
	}
	r.logger.Infow("sso login succeeded", "user", u.ID, "from", req.RemoteAddr, "session", req.Session.ID)

	return &Result{User: u, Created: created, Redirect: r.sanitizer.SafeOrDefault(req.ReturnURL)}, nil
}

func (r *Resolver) create(ctx context.Context, tx store.Tx, email, username string, provider sso.Tag) (*userentity.User, error) {
	users := tx.Users()
	if _, err := users.GetByUsername(ctx, username); err == nil {
		r.logger.Warnw("username taken for new sso account, using email", "email", email, "username", username)
		username = email
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	r.logger.Infow("creating new account for sso login", "email", email, "developer", provider == sso.TagDevForum)
	u := &userentity.User{
		Email:     email,
		Username:  username,
		Local:     false,
		SsoSource: string(provider),
		Developer: provider == sso.TagDevForum,
		Admin:     false,
	}
	if _, err := users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// convert applies the provider conversion table for a user switching from
// u.SsoSource to provider.
func (r *Resolver) convert(ctx context.Context, tx store.Tx, u *userentity.User, provider sso.Tag) error {
	old := sso.Tag(u.SsoSource)
	r.logger.Infow("user logged in with different sso source than before", "new", provider, "old", old)

	if old == sso.TagDevForum || u.Developer {
		return &sso.Rejection{Message: MsgDeveloperAccount}
	}

	id := u.ID
	switch {
	case provider == sso.TagDevForum:
		if err := tx.Audit().Record(ctx, store.AuditEntry{Message: auditDeveloperUpgrade, TargetUserID: &id}); err != nil {
			return err
		}
		u.Developer = true
		u.SsoSource = string(sso.TagDevForum)
	case isSupporterSource(old) && isSupporterSource(provider):
		if u.Suspended && !u.SuspendedManually {
			// assumes the old source's suspension no longer applies
			if err := tx.Audit().Record(ctx, store.AuditEntry{Message: auditUnsuspend, TargetUserID: &id}); err != nil {
				return err
			}
			u.Suspended = false
		}
		u.SsoSource = string(provider)
	default:
		return oops.Code("SSO_CONVERSION").
			With("old", old).
			With("new", provider).
			With("user_id", u.ID).
			Wrap(fmt.Errorf("%w: %q -> %q", ErrLogic, old, provider))
	}
	return nil
}

func isSupporterSource(t sso.Tag) bool {
	return t == sso.TagCommunityForum || t == sso.TagPatreon
}

// rename moves u to username unless another user already has it.
func (r *Resolver) rename(ctx context.Context, tx store.Tx, u *userentity.User, username string) error {
	r.logger.Infow("changing username due to sso login", "email", u.Email, "from", u.Username, "to", username)

	_, err := tx.Users().GetByUsername(ctx, username)
	if err == nil {
		r.logger.Errorw("can't change sso user's username due to a conflict, leaving as-is", "user", u.ID, "username", username)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	id := u.ID
	if err := tx.Audit().Record(ctx, store.AuditEntry{
		Message:      fmt.Sprintf("Username changed due to SSO login to %q", username),
		TargetUserID: &id,
	}); err != nil {
		return err
	}
	u.Username = username
	u.BumpUpdatedAt()
	return tx.Users().Update(ctx, u)
}
