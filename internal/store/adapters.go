package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	auditrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit"
	sessionentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	sessionrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/session/repo"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

const uniqueViolation = "23505"

// mapErr translates driver errors into the store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return errors.Join(ErrConflict, err)
	}
	return err
}

type sessionAdapter struct{ r *sessionrepo.SessionRepo }

func (a sessionAdapter) GetByID(ctx context.Context, id string) (*sessionentity.Session, error) {
	s, err := a.r.GetByID(ctx, id)
	return s, mapErr(err)
}

func (a sessionAdapter) GetByNonceForUpdate(ctx context.Context, nonce string) (*sessionentity.Session, error) {
	s, err := a.r.GetByNonceForUpdate(ctx, nonce)
	return s, mapErr(err)
}

func (a sessionAdapter) Create(ctx context.Context, s *sessionentity.Session) error {
	return mapErr(a.r.Create(ctx, s))
}

func (a sessionAdapter) Update(ctx context.Context, s *sessionentity.Session) error {
	return mapErr(a.r.Update(ctx, s))
}

func (a sessionAdapter) Delete(ctx context.Context, id string) error {
	return mapErr(a.r.Delete(ctx, id))
}

func (a sessionAdapter) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	n, err := a.r.DeleteByUser(ctx, userID)
	return n, mapErr(err)
}

func (a sessionAdapter) DeleteLastUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := a.r.DeleteLastUsedBefore(ctx, cutoff)
	return n, mapErr(err)
}

type userAdapter struct{ r *userrepo.UserRepo }

func (a userAdapter) GetByID(ctx context.Context, id int64) (*userentity.User, error) {
	u, err := a.r.GetByID(ctx, id)
	return u, mapErr(err)
}

func (a userAdapter) GetByEmail(ctx context.Context, email string) (*userentity.User, error) {
	u, err := a.r.GetByEmail(ctx, email)
	return u, mapErr(err)
}

func (a userAdapter) GetLocalByEmail(ctx context.Context, email string) (*userentity.User, error) {
	u, err := a.r.GetLocalByEmail(ctx, email)
	return u, mapErr(err)
}

func (a userAdapter) GetByUsername(ctx context.Context, username string) (*userentity.User, error) {
	u, err := a.r.GetByUsername(ctx, username)
	return u, mapErr(err)
}

func (a userAdapter) Create(ctx context.Context, u *userentity.User) (int64, error) {
	id, err := a.r.Create(ctx, u)
	return id, mapErr(err)
}

func (a userAdapter) Update(ctx context.Context, u *userentity.User) error {
	return mapErr(a.r.Update(ctx, u))
}

func (a userAdapter) BumpSessionVersion(ctx context.Context, id int64) (int64, error) {
	v, err := a.r.BumpSessionVersion(ctx, id)
	return v, mapErr(err)
}

type auditAdapter struct{ r *auditrepo.Repo }

func (a auditAdapter) Record(ctx context.Context, e AuditEntry) error {
	return a.r.Insert(ctx, e.Message, e.TargetUserID, e.ActingUserID)
}
