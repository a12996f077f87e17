package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/patron/entity"
)

type PatronRepo struct {
	db sqlx.ExtContext
}

func NewPatronRepo(db sqlx.ExtContext) *PatronRepo {
	return &PatronRepo{db: db}
}

// EnsureTable creates the patrons table if it does not already exist.
// Rows are written by the patreon sync job; this service only reads them.
func (r *PatronRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS patrons (
		id BIGSERIAL PRIMARY KEY,
		email CITEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		pledge_cents INTEGER NOT NULL DEFAULT 0,
		reward_id TEXT,
		suspended BOOLEAN NOT NULL DEFAULT false,
		suspended_reason TEXT
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_patrons_email ON patrons (email);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// FindByEmail returns the patron with email or sql.ErrNoRows.
func (r *PatronRepo) FindByEmail(ctx context.Context, email string) (*entity.Patron, error) {
	var p entity.Patron
	const q = `SELECT id, email, username, pledge_cents, reward_id, suspended, suspended_reason
		FROM patrons WHERE email=$1`
	if err := sqlx.GetContext(ctx, r.db, &p, q, email); err != nil {
		return nil, err
	}
	return &p, nil
}
