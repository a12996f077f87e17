package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	auditrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit"
	sessionrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/session/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// Postgres implements Store on top of sqlx.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type pgTx struct {
	sessions *sessionrepo.SessionRepo
	users    *userrepo.UserRepo
	audit    *auditrepo.Repo
}

func (t *pgTx) Sessions() SessionRepository { return sessionAdapter{t.sessions} }
func (t *pgTx) Users() UserRepository       { return userAdapter{t.users} }
func (t *pgTx) Audit() AuditLog             { return auditAdapter{t.audit} }

func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		return fn(ctx, &pgTx{
			sessions: sessionrepo.NewSessionRepo(tx),
			users:    userrepo.NewUserRepo(tx),
			audit:    auditrepo.NewRepo(tx),
		})
	})
}

// EnsureSchema creates all tables used by the login core.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if err := userrepo.NewUserRepo(p.db).EnsureTable(ctx); err != nil {
		return err
	}
	if err := sessionrepo.NewSessionRepo(p.db).EnsureTable(ctx); err != nil {
		return err
	}
	return auditrepo.NewRepo(p.db).EnsureTable(ctx)
}
