package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
)

// Repo is the repository implementation for settings backed by PostgreSQL.
type Repo struct {
	db sqlx.ExtContext
}

// NewRepo constructs a new Repo with an existing connection or transaction.
func NewRepo(db sqlx.ExtContext) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the settings table and its index exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	// Check if table exists using to_regclass (Postgres). If it exists, skip creation.
	var tblName sql.NullString
	if err := r.db.QueryRowxContext(ctx, "SELECT to_regclass('public.settings')").Scan(&tblName); err != nil {
		return err
	}

	if !tblName.Valid {
		createTable := `CREATE TABLE settings (
			id varchar(32) PRIMARY KEY,
			parent_id varchar(32) DEFAULT '',
			root_id varchar(32) DEFAULT '',
			record_meta jsonb DEFAULT '{}'::jsonb,
			category varchar(32) DEFAULT '',
			metadata jsonb DEFAULT '{}'::jsonb
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	var idxName sql.NullString
	if err := r.db.QueryRowxContext(ctx, "SELECT to_regclass('public.idx_settings_category')").Scan(&idxName); err != nil {
		return err
	}
	if !idxName.Valid {
		createIndex := `CREATE INDEX idx_settings_category ON settings (category)`
		if _, err := r.db.ExecContext(ctx, createIndex); err != nil {
			return err
		}
	}
	return nil
}

// FirstByCategory returns the lowest-id setting in category or sql.ErrNoRows.
func (r *Repo) FirstByCategory(ctx context.Context, category string) (*entity.Setting, error) {
	var s entity.Setting
	const q = `SELECT id, parent_id, root_id, record_meta, category, metadata
		FROM settings WHERE category=$1 ORDER BY id LIMIT 1`
	if err := sqlx.GetContext(ctx, r.db, &s, q, category); err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts the setting or replaces its metadata.
func (r *Repo) Upsert(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO settings (id, parent_id, root_id, record_meta, category, metadata)
		VALUES (:id, :parent_id, :root_id, :record_meta, :category, :metadata)
		ON CONFLICT (id) DO UPDATE SET category = EXCLUDED.category, metadata = EXCLUDED.metadata`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, s)
	return err
}
