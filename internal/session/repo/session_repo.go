package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
)

// SessionRepo provides data access for the sessions table.
// db may be a *sqlx.DB or a *sqlx.Tx.
type SessionRepo struct {
	db sqlx.ExtContext
}

func NewSessionRepo(db sqlx.ExtContext) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  user_id BIGINT REFERENCES users(id),
  session_version BIGINT NOT NULL DEFAULT 1,
  last_used TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  last_used_from TEXT,
  sso_nonce TEXT UNIQUE,
  sso_return_url TEXT,
  sso_provider TEXT,
  sso_start_time TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT sessions_sso_pending_anonymous CHECK (sso_nonce IS NULL OR user_id IS NULL)
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_last_used ON sessions(last_used);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const sessionColumns = `id, user_id, session_version, last_used, last_used_from, sso_nonce,
		sso_return_url, sso_provider, sso_start_time, created_at`

// GetByID returns the session or sql.ErrNoRows.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	var s entity.Session
	if err := sqlx.GetContext(ctx, r.db, &s, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByNonceForUpdate row-locks the session holding nonce. A concurrent
// request that consumed the nonce first makes this return sql.ErrNoRows.
func (r *SessionRepo) GetByNonceForUpdate(ctx context.Context, nonce string) (*entity.Session, error) {
	var s entity.Session
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE sso_nonce=$1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.db, &s, q, nonce); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Create(ctx context.Context, s *entity.Session) error {
	const q = `INSERT INTO sessions (id, user_id, session_version, last_used, last_used_from, sso_nonce,
		sso_return_url, sso_provider, sso_start_time, created_at)
		VALUES (:id, :user_id, :session_version, :last_used, :last_used_from, :sso_nonce,
		:sso_return_url, :sso_provider, :sso_start_time, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	return err
}

func (r *SessionRepo) Update(ctx context.Context, s *entity.Session) error {
	const q = `UPDATE sessions SET user_id=:user_id, session_version=:session_version, last_used=:last_used,
		last_used_from=:last_used_from, sso_nonce=:sso_nonce, sso_return_url=:sso_return_url,
		sso_provider=:sso_provider, sso_start_time=:sso_start_time
		WHERE id=:id`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	return err
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	return err
}

// DeleteByUser removes every session bound to userID.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteLastUsedBefore is the expiry sweep.
func (r *SessionRepo) DeleteLastUsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_used < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
