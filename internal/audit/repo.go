// Package audit persists the audit log written by login flows.
package audit

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// NOTE: expected table schema (Postgres):
// CREATE TABLE log_entries (
//   id BIGINT PRIMARY KEY,
//   message TEXT NOT NULL,
//   target_user_id BIGINT,
//   acting_user_id BIGINT,
//   created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
// );

// Repo writes audit entries. Ids are snowflakes so entries sort by creation time.
type Repo struct {
	db sqlx.ExtContext
}

func NewRepo(db sqlx.ExtContext) *Repo {
	return &Repo{db: db}
}

func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS log_entries (
  id BIGINT PRIMARY KEY,
  message TEXT NOT NULL,
  target_user_id BIGINT,
  acting_user_id BIGINT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_log_entries_target_user ON log_entries(target_user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Insert records a message about targetUserID performed by actingUserID (both optional).
func (r *Repo) Insert(ctx context.Context, message string, targetUserID, actingUserID *int64) error {
	const q = `INSERT INTO log_entries (id, message, target_user_id, acting_user_id) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, utilities.NewSnowflakeID(), message, targetUserID, actingUserID)
	return err
}
