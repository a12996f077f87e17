// Package store defines the transactional persistence boundary used by the
// login core. Every login request runs its session and user writes inside a
// single InTx call so that they commit or roll back together.
package store

import (
	"context"
	"errors"
	"time"

	sessionentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/session/entity"
	userentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// SessionRepository persists sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id string) (*sessionentity.Session, error)
	// GetByNonceForUpdate locks and returns the session currently holding nonce.
	GetByNonceForUpdate(ctx context.Context, nonce string) (*sessionentity.Session, error)
	Create(ctx context.Context, s *sessionentity.Session) error
	Update(ctx context.Context, s *sessionentity.Session) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
	DeleteLastUsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserRepository persists users. This core never deletes a user.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*userentity.User, error)
	GetByEmail(ctx context.Context, email string) (*userentity.User, error)
	GetLocalByEmail(ctx context.Context, email string) (*userentity.User, error)
	GetByUsername(ctx context.Context, username string) (*userentity.User, error)
	Create(ctx context.Context, u *userentity.User) (int64, error)
	Update(ctx context.Context, u *userentity.User) error
	BumpSessionVersion(ctx context.Context, id int64) (int64, error)
}

// AuditEntry is a single audit log line.
type AuditEntry struct {
	Message      string
	TargetUserID *int64
	ActingUserID *int64
}

// AuditLog records audit entries.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Tx exposes repositories bound to one transaction.
type Tx interface {
	Sessions() SessionRepository
	Users() UserRepository
	Audit() AuditLog
}

// Store runs fn in a transaction; fn's error rolls the transaction back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
