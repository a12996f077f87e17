package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// UserRepo provides data access for users table using sqlx.
// db may be a *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  username TEXT NOT NULL UNIQUE,
  local BOOLEAN NOT NULL DEFAULT false,
  sso_source TEXT NOT NULL DEFAULT '',
  developer BOOLEAN NOT NULL DEFAULT false,
  admin BOOLEAN NOT NULL DEFAULT false,
  suspended BOOLEAN NOT NULL DEFAULT false,
  suspended_manually BOOLEAN NOT NULL DEFAULT false,
  suspended_reason TEXT,
  password_hash TEXT,
  session_version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT users_local_without_sso CHECK (NOT local OR sso_source = '')
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const userColumns = `id, email, username, local, sso_source, developer, admin, suspended,
		suspended_manually, suspended_reason, password_hash, session_version, created_at, updated_at`

// Create inserts a new user row. Returns new ID.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	const q = `INSERT INTO users (email, username, local, sso_source, developer, admin, suspended,
		  suspended_manually, suspended_reason, password_hash, session_version)
		  VALUES (:email, :username, :local, :sso_source, :developer, :admin, :suspended,
		  :suspended_manually, :suspended_reason, :password_hash, :session_version)
		  RETURNING id, created_at, updated_at`
	if u.SessionVersion == 0 {
		u.SessionVersion = 1
	}
	rows, err := sqlx.NamedQueryContext(ctx, r.db, q, u)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return 0, err
		}
		return u.ID, nil
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("no id returned")
}

// GetByEmail returns a user matched by email (case-insensitive due to citext) or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetLocalByEmail only matches password accounts.
func (r *UserRepo) GetLocalByEmail(ctx context.Context, email string) (*entity.User, error) {
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE email=$1 AND local`, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE username=$1`, username); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// Update writes back every mutable column of u.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET email=:email, username=:username, local=:local, sso_source=:sso_source,
		developer=:developer, admin=:admin, suspended=:suspended, suspended_manually=:suspended_manually,
		suspended_reason=:suspended_reason, password_hash=:password_hash, updated_at=NOW()
		WHERE id=:id`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	return err
}

// BumpSessionVersion increments session_version so every bound session goes stale. Returns the new version.
func (r *UserRepo) BumpSessionVersion(ctx context.Context, id int64) (int64, error) {
	const q = `UPDATE users SET session_version = session_version + 1, updated_at=NOW() WHERE id=$1 RETURNING session_version`
	var v int64
	if err := sqlx.GetContext(ctx, r.db, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}
